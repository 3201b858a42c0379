// Package profile syncs the user's remote profile document through the query
// cache. The document carries flat string attributes; list-valued fields are
// JSON arrays serialized into those strings.
package profile

import (
	"context"
	"encoding/json"

	"github.com/SeaWiser/shoes-sync/internal/remote"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

// Attribute names on the remote document.
const (
	FieldName       = "name"
	FieldEmail      = "email"
	FieldAvatarURL  = "avatar"
	FieldFavorites  = "favorites"
	FieldSeenNotifs = "seenNotifications"
	FieldCart       = "cart"
)

type Profile struct {
	ID         string
	Name       string
	Email      string
	AvatarURL  string
	Favorites  []string
	SeenNotifs []string
	// CartJSON is the serialized cart exactly as stored remotely. The cart
	// package owns its shape.
	CartJSON string
}

// fromDocument decodes a profile, falling back to empty values for list
// fields that hold corrupt JSON. A damaged attribute must never block the
// whole profile from loading.
func fromDocument(ctx context.Context, doc *remote.Document, logg *logger.Logger) *Profile {
	return &Profile{
		ID:         doc.ID,
		Name:       doc.Data[FieldName],
		Email:      doc.Data[FieldEmail],
		AvatarURL:  doc.Data[FieldAvatarURL],
		Favorites:  decodeStringList(ctx, doc.Data[FieldFavorites], FieldFavorites, logg),
		SeenNotifs: decodeStringList(ctx, doc.Data[FieldSeenNotifs], FieldSeenNotifs, logg),
		CartJSON:   doc.Data[FieldCart],
	}
}

func decodeStringList(ctx context.Context, raw, field string, logg *logger.Logger) []string {
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		if logg != nil {
			logg.Warn(logg.WithField(ctx, "field", field), "profile attribute holds corrupt JSON, using empty value")
		}
		return []string{}
	}
	return out
}

// EncodeStringList serializes an identifier set the way the backend stores
// list attributes: a JSON array in a string field, never null.
func EncodeStringList(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	raw, _ := json.Marshal(ids)
	return string(raw)
}

// clone returns a copy safe to mutate optimistically.
func (p *Profile) clone() *Profile {
	cp := *p
	cp.Favorites = append([]string(nil), p.Favorites...)
	cp.SeenNotifs = append([]string(nil), p.SeenNotifs...)
	return &cp
}

// applyFields overlays raw attribute updates onto the profile, mirroring what
// the backend will store.
func (p *Profile) applyFields(ctx context.Context, fields map[string]string, logg *logger.Logger) *Profile {
	next := p.clone()
	for key, value := range fields {
		switch key {
		case FieldName:
			next.Name = value
		case FieldEmail:
			next.Email = value
		case FieldAvatarURL:
			next.AvatarURL = value
		case FieldFavorites:
			next.Favorites = decodeStringList(ctx, value, key, logg)
		case FieldSeenNotifs:
			next.SeenNotifs = decodeStringList(ctx, value, key, logg)
		case FieldCart:
			next.CartJSON = value
		}
	}
	return next
}
