package profile

import (
	"fmt"

	"github.com/bytedance/sonic"

	"mindtracking-client/internal/platform/errors"
)

// Accepted field names, highest priority first. The backend has shipped all of these;
// anything else is contract drift and should fail the adapter tests.
var (
	envelopeKeys = []string{"data", "user"}
	photoKeys    = []string{"foto_perfil_url", "foto", "photo_url", "avatar_url"}
	nameKeys     = []string{"nome", "name", "display_name"}
)

// ParseProfile maps a remote profile body onto a Profile.
//
// Candidate objects are tried in order: the "data" object, the "user" object, then the
// root. The first candidate carrying any photo or name key is used. Within it the first
// non-empty value per field wins. null counts as absent and non-string scalars are
// stringified.
func ParseProfile(body []byte) (Profile, error) {
	var root any
	if err := sonic.Unmarshal(body, &root); err != nil {
		return Profile{}, errors.Wrap(errors.KindShape, "profile.parse", "decode profile body", err)
	}

	obj, ok := root.(map[string]any)
	if !ok {
		return Profile{}, errors.New(errors.KindShape, "profile.parse", fmt.Sprintf("profile body is %T, want object", root))
	}

	for _, candidate := range candidates(obj) {
		if p, found := extract(candidate); found {
			return p, nil
		}
	}
	return Profile{}, errors.New(errors.KindShape, "profile.parse", "no photo or name field in profile body")
}

func candidates(root map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(envelopeKeys)+1)
	for _, key := range envelopeKeys {
		if nested, ok := root[key].(map[string]any); ok {
			out = append(out, nested)
		}
	}
	return append(out, root)
}

func extract(obj map[string]any) (Profile, bool) {
	var p Profile
	photo, photoKey := firstValue(obj, photoKeys)
	name, nameKey := firstValue(obj, nameKeys)
	if !photoKey && !nameKey {
		return p, false
	}
	if photo != "" {
		p.Photo, p.HasPhoto = photo, true
	}
	if name != "" {
		p.Name, p.HasName = name, true
	}
	return p, true
}

// firstValue returns the first non-empty value among keys and whether any key exists.
func firstValue(obj map[string]any, keys []string) (string, bool) {
	present := false
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		present = true
		if s := stringify(raw); s != "" {
			return s, true
		}
	}
	return "", present
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
