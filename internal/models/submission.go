package models

import "time"

// Submission statuses. A record is created pending and is terminal after
// a staff decision.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// ApplicationForm is the applicant-entered payload staged client-side and
// committed after OTP verification.
type ApplicationForm struct {
	FullName      string `json:"nama_lengkap"`
	NIK           string `json:"nik"`
	BirthPlace    string `json:"tempat_lahir"`
	BirthDate     string `json:"tanggal_lahir"`
	Address       string `json:"alamat"`
	Province      string `json:"provinsi"`
	City          string `json:"kota"`
	District      string `json:"kecamatan"`
	Village       string `json:"kelurahan"`
	PostalCode    string `json:"kode_pos"`
	Phone         string `json:"no_hp"`
	Email         string `json:"email"`
	Occupation    string `json:"pekerjaan"`
	MonthlyIncome string `json:"penghasilan_bulanan"`
	IDCardURL     string `json:"url_ktp,omitempty"`
	ProductType   string `json:"jenis_tabungan"`
}

// StagedSubmission is the client-held draft awaiting OTP confirmation.
// It survives a page reload by being reconstructible from the persisted
// envelope.
type StagedSubmission struct {
	Phone    string          `json:"phone"`
	Payload  ApplicationForm `json:"payload"`
	StagedAt time.Time       `json:"staged_at"`
}

// SubmissionRecord is the committed application row.
type SubmissionRecord struct {
	Bucket         int             `json:"-"`
	ID             string          `json:"id"`
	ReferenceCode  string          `json:"kode_referensi"`
	Form           ApplicationForm `json:"form"`
	PhoneEncrypted []byte          `json:"-"`
	NIKEncrypted   []byte          `json:"-"`
	KeyID          string          `json:"-"`
	Status         string          `json:"status"`
	DecidedBy      string          `json:"decided_by,omitempty"`
	DecisionNote   string          `json:"decision_note,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
