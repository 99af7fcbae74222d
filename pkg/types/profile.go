package types

// VeggieIdentity is a user's categorical dietary identity.
type VeggieIdentity string

const (
	VeggieOmnivore   VeggieIdentity = "omnivore"
	VeggieVegetarian VeggieIdentity = "vegetarian"
	VeggieVegan      VeggieIdentity = "vegan"
)

// UserProfile is a per-user preference record keyed by username.
// Embedding is derived from Prefer/Dislike at write time; a nil Embedding
// means the profile carries no vector signal (both sets empty).
type UserProfile struct {
	Username       string         `json:"username"`
	VeggieIdentity VeggieIdentity `json:"veggie_identity"`
	Prefer         []string       `json:"prefer"`
	Dislike        []string       `json:"dislike"`
	Embedding      []float32      `json:"-"`
}

// HasSignal reports whether the profile contributes anything to
// personalized ranking.
func (p *UserProfile) HasSignal() bool {
	return len(p.Prefer) > 0 || len(p.Dislike) > 0
}
