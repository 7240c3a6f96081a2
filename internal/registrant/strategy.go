package registrant

import (
	"fmt"
	"strings"
)

type Field int

const (
	FirstName Field = iota
	LastName
	FullName
	Age
	BirthDate
	Gender
	GuardianName
	GuardianEmail
	GuardianPhone
	Medical
	Dietary
	AssignedPlayer
)

// aliases are the field spellings seen across historical checkout forms,
// most specific first.
var aliases = map[Field][]string{
	FirstName:      {"first_name", "firstname", "vorname", "prenom"},
	LastName:       {"last_name", "lastname", "surname", "nachname", "nom"},
	FullName:       {"full_name", "name"},
	Age:            {"age", "alter"},
	BirthDate:      {"birth_date", "birthdate", "date_of_birth", "dob", "birthday", "geburtsdatum"},
	Gender:         {"gender", "sex", "geschlecht"},
	GuardianName:   {"guardian_name", "parent_name"},
	GuardianEmail:  {"guardian_email", "parent_email"},
	GuardianPhone:  {"guardian_phone", "parent_phone", "emergency_phone"},
	Medical:        {"medical", "medical_notes", "medical_info", "allergies"},
	Dietary:        {"dietary", "dietary_requirements", "diet"},
	AssignedPlayer: {"assigned_player", "player_index"},
}

// Strategy reads one metadata naming convention.
type Strategy interface {
	Name() string
	// Lookup returns the value of field for the given 0-based slot.
	Lookup(b Bag, slot int, f Field) (string, bool)
}

// keyStrategy renders a metadata key from a field alias and a slot index.
type keyStrategy struct {
	name string
	key  func(alias string, slot int) (string, bool)
}

func (s keyStrategy) Name() string { return s.name }

func (s keyStrategy) Lookup(b Bag, slot int, f Field) (string, bool) {
	for _, a := range aliases[f] {
		k, ok := s.key(a, slot)
		if !ok {
			return "", false
		}
		if v, ok := b.Get(k); ok {
			return v, true
		}
	}
	return "", false
}

// Indexed reads keys like "participant_first_name_1" (1-based suffix).
func Indexed(prefix string) Strategy {
	return keyStrategy{
		name: "indexed:" + prefix,
		key: func(alias string, slot int) (string, bool) {
			return fmt.Sprintf("%s_%s_%d", prefix, alias, slot+1), true
		},
	}
}

// Bracketed reads keys like "players[0][first_name]" (0-based).
func Bracketed(collection string) Strategy {
	return keyStrategy{
		name: "bracketed:" + collection,
		key: func(alias string, slot int) (string, bool) {
			return fmt.Sprintf("%s[%d][%s]", collection, slot, alias), true
		},
	}
}

// Labelled reads human labels like "Child 1 First Name".
func Labelled(noun string) Strategy {
	return keyStrategy{
		name: "labelled:" + noun,
		key: func(alias string, slot int) (string, bool) {
			return fmt.Sprintf("%s %d %s", noun, slot+1, strings.ReplaceAll(alias, "_", " ")), true
		},
	}
}

// Unindexed reads keys like "child_first_name". They only ever describe the
// first slot.
func Unindexed(prefix string) Strategy {
	return keyStrategy{
		name: "unindexed:" + prefix,
		key: func(alias string, slot int) (string, bool) {
			if slot != 0 {
				return "", false
			}
			return prefix + "_" + alias, true
		},
	}
}

// DefaultStrategies lists the known conventions in priority order. New
// conventions are appended here.
func DefaultStrategies() []Strategy {
	return []Strategy{
		Indexed("participant"),
		Indexed("child"),
		Bracketed("players"),
		Labelled("Child"),
		Labelled("Player"),
		Unindexed("child"),
		Unindexed("player"),
	}
}
