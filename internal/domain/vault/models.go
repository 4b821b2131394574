package vault

import "time"

type Credential struct {
	Platform  string    `json:"platform"`
	Username  string    `json:"-"`
	Password  string    `json:"-"`
	URL       string    `json:"url"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CredentialInput struct {
	Platform string
	Username string
	Password string
	URL      string
	Notes    string
}

// Summary is the listing projection; it never carries secrets.
type Summary struct {
	Platform   string    `json:"platform"`
	URL        string    `json:"url"`
	Notes      string    `json:"notes"`
	KeyVersion int       `json:"keyVersion"`
	Encrypted  bool      `json:"encrypted"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type MigrationReport struct {
	Scanned  int      `json:"scanned"`
	Migrated int      `json:"migrated"`
	Skipped  int      `json:"skipped"`
	Corrupt  []string `json:"corrupt,omitempty"`
}

type record struct {
	Platform   string
	UsernameCT []byte
	PasswordCT []byte
	URL        string
	Notes      string
	KeyVersion int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const currentKeyVersion = 1
