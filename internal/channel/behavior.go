package channel

import (
	"strconv"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/entity"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/notification"
)

// Context carries the contextual entities a channel may need to compute its
// concrete channel ids. Always passed explicitly; channels never reach for
// ambient request state.
type Context struct {
	Recipient entity.User
	Entity    entity.Entity
}

// PlaceholderFunc resolves one message placeholder against the live
// notification. Placeholders are evaluated at read time so renames and
// stack-count changes show up in already-persisted messages.
type PlaceholderFunc func(n *notification.Notification) string

// ComputeFunc derives computed channel ids from context for channels with
// custom fan-out logic.
type ComputeFunc func(rc Context) []string

// SaveHook runs once before a notification is persisted. Returning nil vetoes
// creation.
type SaveHook func(n *notification.Notification) *notification.Notification

// RedirectHook lets a channel override the final redirect URI.
type RedirectHook func(n *notification.Notification, uri string) string

// StackEntityFunc supplies an optional extra dimension for the stacking key.
type StackEntityFunc func(n *notification.Notification) entity.Entity

// Behavior is the per-channel policy object: how recipient sets are computed
// from context and which hooks apply around notification persistence.
type Behavior interface {
	ID() string
	Definition() Definition
	BaseID() string
	IsBase() bool
	IsComputed() bool
	IsIndividual() bool
	IsMuteAllowed() bool
	DefaultMessage() string
	DefaultLink() string
	UseEntityURI() bool

	// ComputedChannelIDs returns the concrete channel ids this channel
	// resolves to for the given context. An empty slice means the context is
	// insufficient and dispatch should abort without error.
	ComputedChannelIDs(rc Context) []string

	AlterRedirectURI(n *notification.Notification, uri string) string
	OnNotificationSave(n *notification.Notification) *notification.Notification
	PlaceholderProviders() map[string]PlaceholderFunc
	StackRelatedEntity(n *notification.Notification) entity.Entity
}

// Base is the default channel behavior: a broadcast channel whose single
// computed id is the definition id. Other kinds compose over it.
type Base struct {
	def Definition
	reg *Registry

	compute      ComputeFunc
	saveHook     SaveHook
	redirectHook RedirectHook
	placeholders map[string]PlaceholderFunc
	stackEntity  StackEntityFunc
}

// Option customizes a channel behavior at construction.
type Option func(*Base)

// WithComputeFunc installs custom channel id computation (fan-out channels).
func WithComputeFunc(fn ComputeFunc) Option {
	return func(b *Base) { b.compute = fn }
}

// WithSaveHook installs a pre-persist hook; return nil from it to veto.
func WithSaveHook(fn SaveHook) Option {
	return func(b *Base) { b.saveHook = fn }
}

// WithRedirectHook installs a redirect URI override.
func WithRedirectHook(fn RedirectHook) Option {
	return func(b *Base) { b.redirectHook = fn }
}

// WithPlaceholders adds placeholder providers on top of the defaults.
func WithPlaceholders(providers map[string]PlaceholderFunc) Option {
	return func(b *Base) {
		for token, fn := range providers {
			b.placeholders[token] = fn
		}
	}
}

// WithStackRelatedEntity installs the extra stacking key dimension.
func WithStackRelatedEntity(fn StackEntityFunc) Option {
	return func(b *Base) { b.stackEntity = fn }
}

// NewBase builds a broadcast channel behavior.
func NewBase(def Definition, opts ...Option) *Base {
	b := &Base{
		def: def,
		placeholders: map[string]PlaceholderFunc{
			"@count": func(n *notification.Notification) string {
				return strconv.Itoa(n.StackSize)
			},
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Base) ID() string             { return b.def.ID }
func (b *Base) Definition() Definition { return b.def }
func (b *Base) BaseID() string         { return b.def.Base() }
func (b *Base) IsBase() bool           { return b.def.IsBase() }
func (b *Base) IsIndividual() bool     { return b.def.Individual }
func (b *Base) DefaultMessage() string { return b.def.DefaultMessage }
func (b *Base) DefaultLink() string    { return b.def.DefaultLink }
func (b *Base) UseEntityURI() bool     { return b.def.UseEntityURI }

// IsComputed reports whether computed ids differ from the plugin id.
func (b *Base) IsComputed() bool {
	return b.compute != nil || b.def.Individual || b.def.ID != b.def.Base()
}

// IsMuteAllowed resolves mute permission, following derived channels to
// their base.
func (b *Base) IsMuteAllowed() bool {
	if b.def.IsBase() || b.reg == nil {
		return b.def.MuteAllowed
	}
	parent, err := b.reg.Resolve(b.def.ParentBaseID)
	if err != nil {
		return b.def.MuteAllowed
	}
	return parent.IsMuteAllowed()
}

func (b *Base) ComputedChannelIDs(rc Context) []string {
	if b.compute != nil {
		return b.compute(rc)
	}
	return []string{b.def.ID}
}

func (b *Base) AlterRedirectURI(n *notification.Notification, uri string) string {
	if b.redirectHook != nil {
		return b.redirectHook(n, uri)
	}
	return uri
}

// OnNotificationSave applies channel defaults before persistence and runs the
// channel's custom hook, which may veto by returning nil.
func (b *Base) OnNotificationSave(n *notification.Notification) *notification.Notification {
	if n.Message == "" && b.def.DefaultMessage != "" {
		n.Message = b.def.DefaultMessage
	}
	if n.RedirectURI == "" && !n.HasRelatedEntity() && b.def.DefaultLink != "" {
		n.RedirectURI = b.def.DefaultLink
	}
	if b.saveHook != nil {
		return b.saveHook(n)
	}
	return n
}

func (b *Base) PlaceholderProviders() map[string]PlaceholderFunc {
	return b.placeholders
}

func (b *Base) StackRelatedEntity(n *notification.Notification) entity.Entity {
	if b.stackEntity != nil {
		return b.stackEntity(n)
	}
	return nil
}

// Individual is the behavior for channels where every user has a personal
// channel instance, e.g. replies to one's comment.
type Individual struct {
	*Base
}

// NewIndividual builds an individual channel behavior. The definition's
// Individual flag is forced on.
func NewIndividual(def Definition, opts ...Option) *Individual {
	def.Individual = true
	return &Individual{Base: NewBase(def, opts...)}
}

// ComputedChannelIDs requires a recipient in context; without one the
// channel cannot address anybody and returns nothing.
func (i *Individual) ComputedChannelIDs(rc Context) []string {
	if i.compute != nil {
		return i.compute(rc)
	}
	if rc.Recipient == nil {
		return nil
	}
	return []string{i.BaseID() + ":" + rc.Recipient.EntityID()}
}

func (i *Individual) IsComputed() bool { return true }
