// Package signature derives the stable identity of an event occurrence from
// its catalog attributes.
//
// Place names are resolved to one canonical spelling through a Table so that
// rows sourced from differently localised catalog entries collapse onto the
// same signature. Start dates take part in the identity only for activity
// types listed as date-distinguishing.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/kirinyoku/roster-go/internal/domain"
)

// Domain prefix of the hash input. Bump the version to migrate the algorithm.
const hashDomain = "roster/event-signature/v1"

// Length of a signature in hex characters (128 bits).
const Length = 32

const fieldSep = "\x1f"

var DefaultDateDistinguishing = []string{"tournament"}

// Normalized is the canonical attribute set that is hashed.
type Normalized struct {
	ActivityType string
	Venue        string
	AgeGroup     string
	TimeWindow   string
	Season       string
	City         string
	Region       string
	ProductID    int64
	GirlsOnly    bool
	// StartDate is empty unless the activity type is date-distinguishing.
	StartDate string
}

type Generator struct {
	table          *Table
	dateActivities map[string]struct{}
}

// New builds a Generator. A nil table means DefaultTable; an empty
// dateActivities list means DefaultDateDistinguishing.
func New(table *Table, dateActivities []string) *Generator {
	if table == nil {
		table = DefaultTable()
	}

	if len(dateActivities) == 0 {
		dateActivities = DefaultDateDistinguishing
	}

	set := make(map[string]struct{}, len(dateActivities))
	for _, a := range dateActivities {
		if f := fold(a); f != "" {
			set[f] = struct{}{}
		}
	}

	return &Generator{table: table, dateActivities: set}
}

// DateDistinguishing reports whether events of this activity type are told
// apart by their start date.
func (g *Generator) DateDistinguishing(activityType string) bool {
	_, ok := g.dateActivities[fold(activityType)]
	return ok
}

func (g *Generator) Normalize(a domain.EventAttributes) Normalized {
	n := Normalized{
		ActivityType: fold(a.ActivityType),
		Venue:        g.place(a.Venue),
		AgeGroup:     fold(a.AgeGroup),
		TimeWindow:   fold(a.TimeWindow),
		Season:       fold(a.Season),
		City:         g.place(a.City),
		Region:       g.place(a.Region),
		ProductID:    a.ProductID,
		GirlsOnly:    a.GirlsOnly,
	}

	if !a.StartDate.IsZero() && g.DateDistinguishing(a.ActivityType) {
		n.StartDate = a.StartDate.UTC().Format("2006-01-02")
	}

	return n
}

// Generate returns the fixed-width hex signature of a. It never fails.
func (g *Generator) Generate(a domain.EventAttributes) string {
	return g.Normalize(a).Signature()
}

// Signature hashes the fields in their fixed order:
// activity, venue, age group, time window, season, city, region, product,
// girls-only, start date.
func (n Normalized) Signature() string {
	fields := []string{
		"activity=" + n.ActivityType,
		"venue=" + n.Venue,
		"age_group=" + n.AgeGroup,
		"time_window=" + n.TimeWindow,
		"season=" + n.Season,
		"city=" + n.City,
		"region=" + n.Region,
		"product=" + strconv.FormatInt(n.ProductID, 10),
		"girls_only=" + strconv.FormatBool(n.GirlsOnly),
		"start_date=" + n.StartDate,
	}

	h := sha256.New()
	h.Write([]byte(hashDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(strings.Join(fields, fieldSep)))

	return hex.EncodeToString(h.Sum(nil)[:Length/2])
}

func (g *Generator) place(s string) string {
	if c, ok := g.table.Resolve(s); ok {
		return c
	}
	return fold(s)
}

// Valid reports whether s looks like a signature produced by Generate.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := range len(s) {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
