package channel

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	domerrors "github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/errors"
)

// Definition is the immutable descriptor of a notification channel. Channels
// are registered once at process start; definitions are read-only afterwards.
type Definition struct {
	// ID uniquely identifies the channel plugin.
	ID string `json:"id"`

	// Label is the human readable channel name.
	Label string `json:"label"`

	// BaseID is the first segment of every computed channel id produced by
	// this channel. Defaults to ID.
	BaseID string `json:"base_id,omitempty"`

	// ParentBaseID is set on derived channels and names the base channel they
	// inherit mute behavior from.
	ParentBaseID string `json:"parent_base_id,omitempty"`

	// Individual marks channels with exactly one recipient per computed id,
	// e.g. likes or replies addressed to a single user.
	Individual bool `json:"individual,omitempty"`

	// MuteAllowed controls whether subscribers may disable alerts. Derived
	// channels inherit the value from their base.
	MuteAllowed bool `json:"allow_mute,omitempty"`

	// UseEntityURI makes the notification link resolve to the related
	// entity's canonical URL instead of a stored URI.
	UseEntityURI bool `json:"use_entity_uri,omitempty"`

	// DefaultMessage is applied when a notification arrives without one.
	DefaultMessage string `json:"default_message,omitempty"`

	// DefaultLink is applied when a notification has no redirect target.
	DefaultLink string `json:"default_link,omitempty"`
}

// definitionSchema validates channel definitions at registration time.
const definitionSchema = `{
	"type": "object",
	"required": ["id", "label"],
	"additionalProperties": false,
	"properties": {
		"id":              {"type": "string", "pattern": "^[a-z0-9_]+$", "minLength": 1},
		"label":           {"type": "string", "minLength": 1},
		"base_id":         {"type": "string", "pattern": "^[a-z0-9_]+$"},
		"parent_base_id":  {"type": "string", "pattern": "^[a-z0-9_]+$"},
		"individual":      {"type": "boolean"},
		"allow_mute":      {"type": "boolean"},
		"use_entity_uri":  {"type": "boolean"},
		"default_message": {"type": "string"},
		"default_link":    {"type": "string", "format": "uri-reference"}
	}
}`

var definitionSchemaLoader = gojsonschema.NewStringLoader(definitionSchema)

// Validate checks the definition against the registration schema.
func (d Definition) Validate() error {
	raw, err := json.Marshal(d)
	if err != nil {
		return domerrors.NewInvalidChannelError(d.ID, err.Error())
	}

	result, err := gojsonschema.Validate(definitionSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return domerrors.NewInvalidChannelError(d.ID, err.Error())
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return domerrors.NewInvalidChannelError(d.ID, strings.Join(details, "; "))
	}
	return nil
}

// Base returns the effective base id.
func (d Definition) Base() string {
	if d.BaseID != "" {
		return d.BaseID
	}
	return d.ID
}

// IsBase reports whether the definition is a base channel (not derived from
// another one).
func (d Definition) IsBase() bool {
	return d.ParentBaseID == ""
}
