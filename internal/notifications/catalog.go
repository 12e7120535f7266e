package notifications

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// messageArgs lists, per key, which params feed the format verbs and in what order.
var messageArgs = map[string][]string{
	KeySyncSuccess: {"records"},
	KeySyncDropped: {"action", "attempts"},
	KeySyncTest:    nil,
}

var messages = newCatalog()

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	mustSet(b, language.English, KeySyncSuccess,
		plural.Selectf(1, "%d",
			"one", "%d record synced",
			"other", "%d records synced"))
	mustSet(b, language.English, KeySyncDropped,
		plural.Selectf(2, "%d",
			"one", "Dropped offline action %s after %d failed attempt",
			"other", "Dropped offline action %s after %d failed attempts"))
	mustSet(b, language.English, KeySyncTest, catalog.String("Notification system test"))

	mustSet(b, language.Spanish, KeySyncSuccess,
		plural.Selectf(1, "%d",
			"one", "%d registro sincronizado",
			"other", "%d registros sincronizados"))
	mustSet(b, language.Spanish, KeySyncDropped,
		plural.Selectf(2, "%d",
			"one", "Acción sin conexión %s descartada tras %d intento fallido",
			"other", "Acción sin conexión %s descartada tras %d intentos fallidos"))
	mustSet(b, language.Spanish, KeySyncTest, catalog.String("Prueba del sistema de notificaciones"))
	return b
}

func mustSet(b *catalog.Builder, tag language.Tag, key string, msg catalog.Message) {
	if err := b.Set(tag, key, msg); err != nil {
		panic(fmt.Sprintf("notifications: catalog entry %s/%s: %v", tag, key, err))
	}
}

// Renderer turns notifications into display text for one language.
type Renderer struct {
	printer *message.Printer
}

// NewRenderer returns a renderer for lang, falling back to English for
// unsupported or malformed tags.
func NewRenderer(lang string) *Renderer {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		tag = language.English
	}
	return &Renderer{printer: message.NewPrinter(tag, message.Catalog(messages))}
}

// Render formats n. Keys missing from the catalog render as the key followed
// by the params, so nothing is silently lost.
func (r *Renderer) Render(n Notification) string {
	names, known := messageArgs[n.MessageKey]
	if !known {
		return fallbackText(n)
	}
	args := make([]any, 0, len(names))
	for _, name := range names {
		args = append(args, n.Params[name])
	}
	return r.printer.Sprintf(n.MessageKey, args...)
}

func fallbackText(n Notification) string {
	if len(n.Params) == 0 {
		return n.MessageKey
	}
	keys := make([]string, 0, len(n.Params))
	for key := range n.Params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, n.Params[key]))
	}
	return n.MessageKey + " (" + strings.Join(parts, ", ") + ")"
}
