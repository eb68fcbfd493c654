package protocol

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// AtomEntry is the decoded form of an Atom result item.
type AtomEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Content   string    `json:"content,omitempty"`
	Link      string    `json:"link,omitempty"`
	Author    string    `json:"author,omitempty"`
	Image     string    `json:"image,omitempty"`
	Score     float64   `json:"score,omitempty"`
	Published time.Time `json:"published"`
}

// NewAtomPayload encodes the entry as an Atom-tagged payload entry.
func NewAtomPayload(entry AtomEntry) (PayloadEntry, error) {
	fields := map[string]any{
		"id":    entry.ID,
		"title": entry.Title,
	}
	setIfNotEmpty(fields, "summary", entry.Summary)
	setIfNotEmpty(fields, "content", entry.Content)
	setIfNotEmpty(fields, "link", entry.Link)
	setIfNotEmpty(fields, "author", entry.Author)
	setIfNotEmpty(fields, "image", entry.Image)
	if entry.Score != 0 {
		fields["score"] = entry.Score
	}
	if !entry.Published.IsZero() {
		fields["published"] = entry.Published.UTC().Format(time.RFC3339Nano)
	}

	data, err := structpb.NewStruct(fields)
	if err != nil {
		return PayloadEntry{}, fmt.Errorf("encode atom entry %q: %w", entry.ID, err)
	}
	return PayloadEntry{Name: EntryName, Namespace: NSAtom, Data: data}, nil
}

// DecodeAtom reads an Atom payload entry back into its typed form.
func DecodeAtom(entry PayloadEntry) (AtomEntry, error) {
	if !entry.IsAtom() {
		return AtomEntry{}, fmt.Errorf("%w: entry %s in %q is not an atom entry", ErrMalformedStanza, entry.Name, entry.Namespace)
	}
	fields := entry.Data.GetFields()
	atom := AtomEntry{
		ID:      fields["id"].GetStringValue(),
		Title:   fields["title"].GetStringValue(),
		Summary: fields["summary"].GetStringValue(),
		Content: fields["content"].GetStringValue(),
		Link:    fields["link"].GetStringValue(),
		Author:  fields["author"].GetStringValue(),
		Image:   fields["image"].GetStringValue(),
		Score:   fields["score"].GetNumberValue(),
	}
	if published := fields["published"].GetStringValue(); published != "" {
		ts, err := time.Parse(time.RFC3339Nano, published)
		if err != nil {
			return AtomEntry{}, fmt.Errorf("%w: published %q: %w", ErrMalformedStanza, published, err)
		}
		atom.Published = ts
	}
	return atom, nil
}

// Text returns the searchable text of the entry.
func (a AtomEntry) Text() string {
	return a.Title + "\n" + a.Summary + "\n" + a.Content
}

func setIfNotEmpty(fields map[string]any, key, value string) {
	if value != "" {
		fields[key] = value
	}
}
