// platform.go defines the platform bitset used to target posts.
//
// Each supported platform is one bit; a schedule's Platforms field is the OR
// of its targets. Bit values are part of the wire format shared with the API
// server and must not change.
package model

// PlatformSet is an integer bitset of target platforms.
type PlatformSet int

// Platform bit values. These match the server-side representation.
const (
	PlatformFacebook       PlatformSet = 1
	PlatformTwitter        PlatformSet = 2
	PlatformInstagram      PlatformSet = 4
	PlatformLinkedIn       PlatformSet = 8
	PlatformGoogleBusiness PlatformSet = 16
	PlatformPinterest      PlatformSet = 32
	PlatformYouTube        PlatformSet = 64
)

// allPlatforms lists every bit in ascending order for deterministic iteration.
var allPlatforms = []PlatformSet{
	PlatformFacebook,
	PlatformTwitter,
	PlatformInstagram,
	PlatformLinkedIn,
	PlatformGoogleBusiness,
	PlatformPinterest,
	PlatformYouTube,
}

// platformNames maps each bit to its canonical lowercase name.
var platformNames = map[PlatformSet]string{
	PlatformFacebook:       "facebook",
	PlatformTwitter:        "twitter",
	PlatformInstagram:      "instagram",
	PlatformLinkedIn:       "linkedin",
	PlatformGoogleBusiness: "googlebusiness",
	PlatformPinterest:      "pinterest",
	PlatformYouTube:        "youtube",
}

// Name returns the canonical name of a single-bit set, or "unknown".
func (p PlatformSet) Name() string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return "unknown"
}

// Has reports whether every bit of target is set.
func (p PlatformSet) Has(target PlatformSet) bool {
	return p&target == target
}

// Each returns the individual platform bits set in p, in ascending bit order.
func (p PlatformSet) Each() []PlatformSet {
	var set []PlatformSet
	for _, bit := range allPlatforms {
		if p&bit != 0 {
			set = append(set, bit)
		}
	}
	return set
}

// Names returns the canonical names of the platforms set in p.
func (p PlatformSet) Names() []string {
	bits := p.Each()
	names := make([]string, len(bits))
	for i, bit := range bits {
		names[i] = bit.Name()
	}
	return names
}

// Count returns the number of platforms set in p.
func (p PlatformSet) Count() int {
	return len(p.Each())
}
