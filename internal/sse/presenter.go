package sse

import (
	"strings"

	"github.com/starford/bannerd/internal/banner"
)

// BannerShown is the payload of banner.shown.
type BannerShown struct {
	*banner.State
	// URL is where a front-end loads the image from.
	URL string `json:"url"`
}

// Presenter forwards banner redraws and notices to the broker.
type Presenter struct {
	broker   *Broker
	blobBase string
}

// NewPresenter creates a Presenter. blobBase is the URL prefix blob handles
// are served under, e.g. "/api/blobs/".
func NewPresenter(b *Broker, blobBase string) *Presenter {
	return &Presenter{broker: b, blobBase: blobBase}
}

// Show implements banner.Renderer.
func (p *Presenter) Show(viewID string, st *banner.State) {
	if st == nil {
		p.Hide(viewID, "")
		return
	}
	p.broker.Publish(Event{
		Type: TypeBannerShown,
		Data: BannerShown{State: st, URL: p.URL(st.Image.Reference)},
		View: viewID,
	})
}

// Hide implements banner.Renderer.
func (p *Presenter) Hide(viewID, notePath string) {
	p.broker.Publish(Event{
		Type: TypeBannerHidden,
		Data: map[string]string{"view_id": viewID, "path": notePath},
		View: viewID,
	})
}

// Notice implements banner.Notifier.
func (p *Presenter) Notice(msg string) {
	p.broker.Publish(Event{Type: TypeNotice, Data: map[string]string{"message": msg}})
}

// URL maps an image reference to something a browser can load.
func (p *Presenter) URL(ref string) string {
	if id, ok := strings.CutPrefix(ref, banner.BlobPrefix); ok {
		return p.blobBase + id
	}
	return ref
}

var (
	_ banner.Renderer = (*Presenter)(nil)
	_ banner.Notifier = (*Presenter)(nil)
)
