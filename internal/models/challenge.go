package models

import "time"

// Challenge is a server-held math CAPTCHA entry. The question is returned
// to the client once at generation time; the expected answer never leaves
// the server.
type Challenge struct {
	Token          string    `json:"token"`
	ExpectedAnswer string    `json:"expected_answer"`
	Attempts       int       `json:"attempts"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChallengeResponse is the client-facing half of a generated challenge.
type ChallengeResponse struct {
	Token    string `json:"token"`
	Question string `json:"question"`
}
