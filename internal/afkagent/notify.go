package afkagent

import (
	"fmt"
	"log/slog"
)

// Notifier shows a user-facing notification.
type Notifier interface {
	Notify(title, body string) error
}

// LogNotifier writes notifications to the log. It is the headless default.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(title, body string) error {
	l := n.Log
	if l == nil {
		l = slog.Default()
	}
	l.Info("notification", "title", title, "body", body)
	return nil
}

// ///////////////////////////////////////////////
// Localized Text
// ///////////////////////////////////////////////

type texts struct {
	title       string
	entered     string
	tierChanged string
	welcomeBack string
}

var locales = map[string]texts{
	"en": {
		title:       "AFK",
		entered:     "You are now AFK: %s",
		tierChanged: "AFK status changed: %s",
		welcomeBack: "Welcome back!",
	},
	"de": {
		title:       "AFK",
		entered:     "Du bist jetzt AFK: %s",
		tierChanged: "AFK-Status geändert: %s",
		welcomeBack: "Willkommen zurück!",
	},
	"fr": {
		title:       "AFK",
		entered:     "Vous êtes maintenant AFK : %s",
		tierChanged: "Statut AFK modifié : %s",
		welcomeBack: "Bon retour !",
	},
	"es": {
		title:       "AFK",
		entered:     "Ahora estás AFK: %s",
		tierChanged: "Estado AFK cambiado: %s",
		welcomeBack: "¡Bienvenido de nuevo!",
	},
}

func locale(lang string) texts {
	if s, ok := locales[lang]; ok {
		return s
	}
	return locales["en"]
}

func (s texts) enteredText(status string) string { return fmt.Sprintf(s.entered, status) }
func (s texts) tierText(status string) string    { return fmt.Sprintf(s.tierChanged, status) }
