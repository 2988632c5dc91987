package responder

// Responder is a human professional who can take over a distress escalation.
type Responder struct {
	ID          string  `json:"id" yaml:"id"`
	DisplayName string  `json:"displayName" yaml:"displayName"`
	Role        string  `json:"role" yaml:"role"`
	ContactInfo *string `json:"contactInfo,omitempty" yaml:"contactInfo,omitempty"`
	Available   bool    `json:"available" yaml:"available"`
}

// RolePsychiatrist is the role the distress handler looks up by default.
const RolePsychiatrist = "psychiatrist"

// Seed provides the default directory used when no responders file is configured.
func Seed() []Responder {
	contact := "+94 11 269 6666"
	return []Responder{
		{
			ID:          "1",
			DisplayName: "Dr. Anjali Perera",
			Role:        RolePsychiatrist,
			ContactInfo: &contact,
			Available:   true,
		},
		{
			ID:          "2",
			DisplayName: "Dr. Karthik Raman",
			Role:        RolePsychiatrist,
			Available:   true,
		},
	}
}
