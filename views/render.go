package views

import (
	"context"
	"errors"
	"net/http"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin/render"
)

var errNotComponent = errors.New("views: render data is not a templ.Component")

// HTMLTemplRenderer implements gin's render.HTMLRender for templ components.
// The template name is ignored.
type HTMLTemplRenderer struct{}

func (r *HTMLTemplRenderer) Instance(_ string, d any) render.Render {
	component, ok := d.(templ.Component)
	if !ok {
		return &Renderer{Ctx: context.Background(), err: errNotComponent}
	}
	return &Renderer{Ctx: context.Background(), Component: component}
}

type Renderer struct {
	Ctx       context.Context
	Component templ.Component
	err       error
}

func (r Renderer) Render(w http.ResponseWriter) error {
	if r.err != nil {
		return r.err
	}

	r.WriteContentType(w)
	return r.Component.Render(r.Ctx, w)
}

func (r Renderer) WriteContentType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}
