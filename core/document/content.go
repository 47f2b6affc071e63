package document

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Content kinds. A document's kind is fixed at creation: a sheet can never
// become a presentation.
const (
	KindDoc          = "doc"
	KindSheet        = "sheet"
	KindPresentation = "presentation"
)

var Kinds = []string{KindDoc, KindSheet, KindPresentation}

// Element types
const (
	ElementText  = "text"
	ElementImage = "image"
	ElementShape = "shape"
)

type (
	// Content is the body of a document; exactly one of the kind-specific
	// fields is active, selected by Kind.
	Content struct {
		Kind string

		// Kind == KindDoc: a single opaque rich-text blob.
		HTML string

		// Kind == KindSheet: sparse cell grid; absent key == empty cell.
		// Keys are normalized addresses ("A1", never "a1").
		Cells map[string]string

		// Kind == KindPresentation: ordered slides, never empty.
		Slides []Slide
	}

	Slide struct {
		ID       string    `json:"id"`
		Layout   string    `json:"layout"`
		Elements []Element `json:"elements"`
	}

	// Element is a positioned slide element. X/Y/W/H are unconstrained;
	// off-canvas values simply render outside the visible frame.
	Element struct {
		ID   string  `json:"id"`
		Type string  `json:"type"` // text | image | shape
		X    float64 `json:"x"`
		Y    float64 `json:"y"`
		W    float64 `json:"w"`
		H    float64 `json:"h"`

		// ElementText
		Text     string `json:"text,omitempty"`
		FontSize int    `json:"font_size,omitempty"`
		Bold     bool   `json:"bold,omitempty"`
		Italic   bool   `json:"italic,omitempty"`
		Align    string `json:"align,omitempty"`

		// ElementImage
		URL string `json:"url,omitempty"`

		// ElementShape
		Shape string `json:"shape,omitempty"`
	}
)

// NewContent returns the empty body for a kind: blank text, no cells, or a
// single starter slide.
func NewContent(kind string) (Content, error) {
	switch kind {
	case KindDoc:
		return Content{Kind: KindDoc}, nil
	case KindSheet:
		return Content{Kind: KindSheet, Cells: make(map[string]string)}, nil
	case KindPresentation:
		return Content{Kind: KindPresentation, Slides: []Slide{{ID: uuid.New().String(), Layout: "blank"}}}, nil
	}
	return Content{}, fmt.Errorf("unknown document kind %q", kind)
}

// NormalizeAddr case-normalizes a cell address for use as a map key: "a1" == "A1".
func NormalizeAddr(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}

// Clone deep-copies the content so a caller can hold a working copy without
// sharing maps or slices with anyone else.
func (c Content) Clone() Content {
	out := c
	if c.Cells != nil {
		out.Cells = make(map[string]string, len(c.Cells))
		for k, v := range c.Cells {
			out.Cells[k] = v
		}
	}
	if c.Slides != nil {
		out.Slides = make([]Slide, len(c.Slides))
		for i, sl := range c.Slides {
			cp := sl
			cp.Elements = append([]Element(nil), sl.Elements...)
			out.Slides[i] = cp
		}
	}
	return out
}

// Sheet operations

// Cell returns the raw value stored at addr (formulas as their "=..." text).
func (c Content) Cell(addr string) (string, bool) {
	if c.Kind != KindSheet {
		return "", false
	}
	v, ok := c.Cells[NormalizeAddr(addr)]
	return v, ok
}

// SetCell stores a raw value at addr; an empty value clears the cell so the
// grid stays sparse.
func (c *Content) SetCell(addr, val string) error {
	if c.Kind != KindSheet {
		return ErrKindMismatch
	}
	addr = NormalizeAddr(addr)
	if _, _, ok := parseAddr(addr); !ok {
		return fmt.Errorf("invalid cell address %q", addr)
	}
	if val == "" {
		delete(c.Cells, addr)
		return nil
	}
	if c.Cells == nil {
		c.Cells = make(map[string]string)
	}
	c.Cells[addr] = val
	return nil
}

// ClearCell removes the value at addr.
func (c *Content) ClearCell(addr string) error {
	return c.SetCell(addr, "")
}

// Doc operations

func (c *Content) SetHTML(html string) error {
	if c.Kind != KindDoc {
		return ErrKindMismatch
	}
	c.HTML = html
	return nil
}

// Presentation operations

func (c Content) slideIndex(id string) int {
	for i, sl := range c.Slides {
		if sl.ID == id {
			return i
		}
	}
	return -1
}

// AddSlide appends a new empty slide and returns it.
func (c *Content) AddSlide(layout string) (Slide, error) {
	if c.Kind != KindPresentation {
		return Slide{}, ErrKindMismatch
	}
	sl := Slide{ID: uuid.New().String(), Layout: layout}
	c.Slides = append(c.Slides, sl)
	return sl, nil
}

// DuplicateSlide inserts a copy right after the original. The copy and its
// elements all get fresh ids.
func (c *Content) DuplicateSlide(id string) (Slide, error) {
	if c.Kind != KindPresentation {
		return Slide{}, ErrKindMismatch
	}
	i := c.slideIndex(id)
	if i < 0 {
		return Slide{}, ErrSlideNotFound
	}
	cp := c.Slides[i]
	cp.ID = uuid.New().String()
	cp.Elements = append([]Element(nil), c.Slides[i].Elements...)
	for j := range cp.Elements {
		cp.Elements[j].ID = uuid.New().String()
	}
	c.Slides = append(c.Slides, Slide{})
	copy(c.Slides[i+2:], c.Slides[i+1:])
	c.Slides[i+1] = cp
	return cp, nil
}

// DeleteSlide removes a slide. The last remaining slide can never be removed.
func (c *Content) DeleteSlide(id string) error {
	if c.Kind != KindPresentation {
		return ErrKindMismatch
	}
	i := c.slideIndex(id)
	if i < 0 {
		return ErrSlideNotFound
	}
	if len(c.Slides) == 1 {
		return ErrLastSlide
	}
	c.Slides = append(c.Slides[:i], c.Slides[i+1:]...)
	return nil
}

// MoveSlide moves a slide to position `to` (clamped to the valid range).
func (c *Content) MoveSlide(id string, to int) error {
	if c.Kind != KindPresentation {
		return ErrKindMismatch
	}
	i := c.slideIndex(id)
	if i < 0 {
		return ErrSlideNotFound
	}
	if to < 0 {
		to = 0
	}
	if to > len(c.Slides)-1 {
		to = len(c.Slides) - 1
	}
	sl := c.Slides[i]
	c.Slides = append(c.Slides[:i], c.Slides[i+1:]...)
	c.Slides = append(c.Slides, Slide{})
	copy(c.Slides[to+1:], c.Slides[to:])
	c.Slides[to] = sl
	return nil
}

// AddElement appends an element to a slide, assigning a fresh id if none is set.
func (c *Content) AddElement(slideID string, el Element) (Element, error) {
	if c.Kind != KindPresentation {
		return Element{}, ErrKindMismatch
	}
	i := c.slideIndex(slideID)
	if i < 0 {
		return Element{}, ErrSlideNotFound
	}
	if el.ID == "" {
		el.ID = uuid.New().String()
	}
	c.Slides[i].Elements = append(c.Slides[i].Elements, el)
	return el, nil
}

// UpdateElement replaces the element with el.ID on the given slide.
func (c *Content) UpdateElement(slideID string, el Element) error {
	if c.Kind != KindPresentation {
		return ErrKindMismatch
	}
	i := c.slideIndex(slideID)
	if i < 0 {
		return ErrSlideNotFound
	}
	for j, e := range c.Slides[i].Elements {
		if e.ID == el.ID {
			c.Slides[i].Elements[j] = el
			return nil
		}
	}
	return ErrElementNotFound
}

// DeleteElement removes an element from a slide.
func (c *Content) DeleteElement(slideID, elementID string) error {
	if c.Kind != KindPresentation {
		return ErrKindMismatch
	}
	i := c.slideIndex(slideID)
	if i < 0 {
		return ErrSlideNotFound
	}
	els := c.Slides[i].Elements
	for j, e := range els {
		if e.ID == elementID {
			c.Slides[i].Elements = append(els[:j], els[j+1:]...)
			return nil
		}
	}
	return ErrElementNotFound
}

// JSON encoding: the kind is the discriminant; only the active payload is
// ever written.

type contentJSON struct {
	Kind   string            `json:"kind"`
	HTML   string            `json:"html,omitempty"`
	Cells  map[string]string `json:"cells,omitempty"`
	Slides []Slide           `json:"slides,omitempty"`
}

func (c Content) MarshalJSON() ([]byte, error) {
	cj := contentJSON{Kind: c.Kind}
	switch c.Kind {
	case KindDoc:
		cj.HTML = c.HTML
	case KindSheet:
		cj.Cells = c.Cells
	case KindPresentation:
		cj.Slides = c.Slides
	default:
		return nil, fmt.Errorf("unknown document kind %q", c.Kind)
	}
	return json.Marshal(cj)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var cj contentJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}
	switch cj.Kind {
	case KindDoc:
		*c = Content{Kind: KindDoc, HTML: cj.HTML}
	case KindSheet:
		cells := make(map[string]string, len(cj.Cells))
		for k, v := range cj.Cells {
			cells[NormalizeAddr(k)] = v
		}
		*c = Content{Kind: KindSheet, Cells: cells}
	case KindPresentation:
		*c = Content{Kind: KindPresentation, Slides: cj.Slides}
	default:
		return fmt.Errorf("unknown document kind %q", cj.Kind)
	}
	return nil
}
