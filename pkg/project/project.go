// Package project defines the interchange shape of an authored tutorial
// document. The container treats the document as opaque bytes; this
// package exists for the builder CLI (resolving media references to
// sources) and for tooling that inspects a packaged project. Field names
// are camelCase, matching the authoring app's JSON.
package project

import (
	"encoding/json"
	"fmt"
)

// PageKind distinguishes the two page types.
type PageKind string

const (
	PageVideo PageKind = "video"
	PageImage PageKind = "image"
)

// Project is an authored multi-page slideshow. Media is referenced by id
// only; the bytes live in the container (V2) or in the embeddedMedia
// list (V1).
type Project struct {
	Title  string     `json:"title"`
	Pages  []Page     `json:"pages"`
	Media  []MediaRef `json:"media"`
	IconID string     `json:"iconId,omitempty"`
}

// Page is one slideshow page with its navigation affordances.
type Page struct {
	ID         string      `json:"id"`
	Kind       PageKind    `json:"kind"`
	MediaID    string      `json:"mediaId"`
	Buttons    []Button    `json:"buttons,omitempty"`
	TouchAreas []TouchArea `json:"touchAreas,omitempty"`
}

// Button is a labelled navigation control on a page.
type Button struct {
	ID         string  `json:"id"`
	Label      string  `json:"label,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	TargetPage string  `json:"targetPage"`
}

// TouchArea is an invisible navigation region on a page.
type TouchArea struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	TargetPage string  `json:"targetPage"`
}

// MediaRef declares one media asset the project uses. Path is the
// authoring-time location; it is resolved by the builder and never
// packaged.
type MediaRef struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mimeType"`
	Path     string `json:"path,omitempty"`
}

// Parse decodes a project document.
func Parse(data []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project document: %w", err)
	}
	return &p, nil
}

// Validate checks referential integrity: unique media and page ids, and
// every page's media reference resolving to a declared asset.
func (p *Project) Validate() error {
	media := make(map[string]struct{}, len(p.Media))
	for _, m := range p.Media {
		if m.ID == "" {
			return fmt.Errorf("media reference with empty id")
		}
		if _, dup := media[m.ID]; dup {
			return fmt.Errorf("duplicate media reference %q", m.ID)
		}
		media[m.ID] = struct{}{}
	}

	pages := make(map[string]struct{}, len(p.Pages))
	for _, pg := range p.Pages {
		if pg.ID == "" {
			return fmt.Errorf("page with empty id")
		}
		if _, dup := pages[pg.ID]; dup {
			return fmt.Errorf("duplicate page id %q", pg.ID)
		}
		pages[pg.ID] = struct{}{}

		if pg.Kind != PageVideo && pg.Kind != PageImage {
			return fmt.Errorf("page %q: unknown kind %q", pg.ID, pg.Kind)
		}
		if pg.MediaID == "" {
			return fmt.Errorf("page %q: missing media reference", pg.ID)
		}
		if _, ok := media[pg.MediaID]; !ok {
			return fmt.Errorf("page %q references unknown media %q", pg.ID, pg.MediaID)
		}
	}

	for _, pg := range p.Pages {
		for _, b := range pg.Buttons {
			if _, ok := pages[b.TargetPage]; !ok {
				return fmt.Errorf("page %q: button %q targets unknown page %q", pg.ID, b.ID, b.TargetPage)
			}
		}
		for _, ta := range pg.TouchAreas {
			if _, ok := pages[ta.TargetPage]; !ok {
				return fmt.Errorf("page %q: touch area %q targets unknown page %q", pg.ID, ta.ID, ta.TargetPage)
			}
		}
	}

	if p.IconID != "" {
		if _, ok := media[p.IconID]; !ok {
			return fmt.Errorf("icon references unknown media %q", p.IconID)
		}
	}
	return nil
}
