package sync

// transientFields are client-only keys stripped from every payload before it
// is submitted to the remote store: embedded image data, temp/original
// identifiers, server-managed timestamps and the offline marker.
var transientFields = []string{
	"image_base64_data",
	"image_mime_type",
	"image_file_name",
	"record_type_for_image",
	"tempId",
	"originalId",
	"created_at",
	"updated_at",
	"_offline",
}

// CleanPayload returns a copy of payload with the transient client-only
// fields removed. All other fields pass through untouched; a nil payload
// yields an empty map.
func CleanPayload(payload map[string]any) map[string]any {
	cleaned := make(map[string]any, len(payload))
	for key, value := range payload {
		cleaned[key] = value
	}
	for _, key := range transientFields {
		delete(cleaned, key)
	}
	return cleaned
}
