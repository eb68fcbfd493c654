package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromWatermill copies Watermill message metadata.
func FromWatermill(md message.Metadata) Metadata {
	result := make(Metadata, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}

// ToWatermill copies the metadata into a Watermill map.
func ToWatermill(md Metadata) message.Metadata {
	wm := make(message.Metadata, len(md))
	for k, v := range md {
		wm[k] = v
	}
	return wm
}

// Apply sets every entry on msg, keeping the keys msg already carries.
func Apply(msg *message.Message, md Metadata) {
	for k, v := range md {
		if msg.Metadata.Get(k) == "" {
			msg.Metadata.Set(k, v)
		}
	}
}
