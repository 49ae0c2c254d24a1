// Package dom models the part of a page the preview touches: host
// containers addressed by id and the video elements attached to them.
package dom

import (
	"errors"
	"sort"
	"sync"
)

// ErrDuplicateID is returned when attaching an element whose id is taken.
var ErrDuplicateID = errors.New("element id already in use")

// Document tracks containers and attached video elements by id. A video
// element can be looked up only while it is attached to a container.
type Document struct {
	mu         sync.RWMutex
	containers map[string]*Container
	videos     map[string]*VideoElement
}

func NewDocument() *Document {
	return &Document{
		containers: make(map[string]*Container),
		videos:     make(map[string]*VideoElement),
	}
}

// AddContainer registers a container, returning the existing one if the id
// is already known.
func (d *Document) AddContainer(id string) *Container {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.containers[id]; ok {
		return c
	}
	c := &Container{id: id, doc: d}
	d.containers[id] = c
	return c
}

func (d *Document) Container(id string) (*Container, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.containers[id]
	return c, ok
}

// Containers returns the sorted container ids.
func (d *Document) Containers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.containers))
	for id := range d.containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CreateVideo returns a detached video element.
func (d *Document) CreateVideo(id string) *VideoElement {
	return newVideoElement(d, id)
}

// Video returns the attached video element with the given id.
func (d *Document) Video(id string) (*VideoElement, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.videos[id]
	return v, ok
}

// Container is a host-provided parent element.
type Container struct {
	id       string
	doc      *Document
	children []*VideoElement
}

func (c *Container) ID() string { return c.id }

func (c *Container) Children() []*VideoElement {
	c.doc.mu.RLock()
	defer c.doc.mu.RUnlock()
	return append([]*VideoElement(nil), c.children...)
}

// AppendChild attaches v to c, detaching it from any previous parent.
func (c *Container) AppendChild(v *VideoElement) error {
	d := c.doc
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.videos[v.id]; ok && existing != v {
		return ErrDuplicateID
	}
	if v.parent != nil {
		v.parent.removeChildLocked(v)
	}
	v.parent = c
	c.children = append(c.children, v)
	d.videos[v.id] = v
	return nil
}

func (c *Container) removeChildLocked(v *VideoElement) {
	for i, child := range c.children {
		if child == v {
			c.children = append(c.children[:i], c.children[i+1:]...)
			return
		}
	}
}
