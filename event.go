package dwloader

import (
	"io"

	"go.nownabe.dev/dwloader/objstore"
)

// Event is a source object to load.
type Event struct {
	Scheme string `json:"scheme"`
	Name   string `json:"name"`
	Bucket string `json:"bucket"`

	// for test
	source io.Reader
}

// EventFromLocation builds an Event for the object at loc.
func EventFromLocation(loc objstore.Location) Event {
	return Event{Scheme: loc.Scheme, Bucket: loc.Bucket, Name: loc.Key}
}

// Location returns where the object is stored.
func (e *Event) Location() objstore.Location {
	scheme := e.Scheme
	if scheme == "" {
		scheme = objstore.SchemeFile
	}
	return objstore.Location{Scheme: scheme, Bucket: e.Bucket, Key: e.Name}
}

// FullPath returns full path of the object such as s3://bucket/key.
func (e *Event) FullPath() string {
	return e.Location().String()
}
