// Package market holds the entities shared by the valuation, ledger and
// warranty components of the recruitment marketplace.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleRecruiter    Role = "recruiter"
	RoleCollaborator Role = "collaborator"
	RoleCandidate    Role = "candidate"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleRecruiter, RoleCollaborator, RoleCandidate:
		return true
	default:
		return false
	}
}

type ResumeStatus string

const (
	ResumePending         ResumeStatus = "pending"
	ResumePricingApproved ResumeStatus = "pricing_approved"
)

// Package is the tier a recruiter pays when claiming a candidate.
type Package string

const (
	PackageBasic    Package = "basic"
	PackagePlatinum Package = "platinum"
	PackageHeadhunt Package = "headhunt"
)

type WarrantyState string

const (
	WarrantyNone    WarrantyState = "none"
	WarrantyActive  WarrantyState = "active"
	WarrantyExpired WarrantyState = "expired"
)

type DrawStatus string

const (
	DrawPending DrawStatus = "pending"
	DrawAllowed DrawStatus = "allowed"
	DrawDrawn   DrawStatus = "drawn"
)

type HardItemKind string

const (
	HardItemLevel  HardItemKind = "level"
	HardItemSalary HardItemKind = "salary"
)

// User owns the point balance. WarrantyPoint is only used for collaborators
// and holds escrowed headhunt earnings until the warranty expires.
type User struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"size:255" json:"name"`
	Role          Role            `gorm:"size:32;not null" json:"role"`
	Point         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"point"`
	WarrantyPoint decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"warranty_point"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Resume struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	CollaboratorID uint         `gorm:"not null;index" json:"collaborator_id"`
	CandidateName  string       `gorm:"size:255" json:"candidate_name"`
	JobTitle       string       `gorm:"size:255" json:"job_title"`
	Status         ResumeStatus `gorm:"size:32;not null;default:'pending'" json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Job is a recruiter's job description. HeadhuntPoint and WarrantyTime
// configure the headhunt flow.
type Job struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	RecruiterID   uint            `gorm:"not null;index" json:"recruiter_id"`
	Title         string          `gorm:"size:255;not null" json:"title"`
	HeadhuntPoint decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"headhunt_point"`
	WarrantyTime  int             `gorm:"not null;default:0" json:"warranty_time"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Valuation is the persisted result of scoring a resume. TotalPoint is always
// HardPoint + DegreePoint + CertificatesPoint.
type Valuation struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	ResumeID          uint            `gorm:"not null;uniqueIndex" json:"resume_id"`
	HardItemKind      HardItemKind    `gorm:"size:16;not null" json:"hard_item_kind"`
	HardItem          string          `gorm:"size:255" json:"hard_item"`
	HardPoint         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"hard_point"`
	Degrees           []string        `gorm:"serializer:json" json:"degrees"`
	DegreePoint       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"degree_point"`
	Certificates      []string        `gorm:"serializer:json" json:"certificates"`
	CertificatesPoint decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"certificates_point"`
	TotalPoint        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_point"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Recompute sets TotalPoint from the three stored components.
func (v *Valuation) Recompute() {
	v.TotalPoint = v.HardPoint.Add(v.DegreePoint).Add(v.CertificatesPoint)
}

// RecruitResume records that a recruiter claimed a candidate resume.
type RecruitResume struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	RecruiterID        uint            `gorm:"not null;index" json:"recruiter_id"`
	ResumeID           uint            `gorm:"not null;index" json:"resume_id"`
	JobID              *uint           `json:"job_id,omitempty"`
	Package            Package         `gorm:"size:16;not null" json:"package"`
	Fee                decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"fee"`
	Rejected           bool            `gorm:"not null;default:false" json:"rejected"`
	RejectReason       string          `gorm:"type:text" json:"reject_reason,omitempty"`
	RemainWarrantyTime int             `gorm:"not null;default:0" json:"remain_warranty_time"`
	WarrantyState      WarrantyState   `gorm:"size:16;not null;default:'none';index" json:"warranty_state"`
	LastWarrantyTick   *time.Time      `gorm:"type:date" json:"last_warranty_tick,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type DrawHistory struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	CollaboratorID uint            `gorm:"not null;index" json:"collaborator_id"`
	DrawPoint      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"draw_point"`
	Status         DrawStatus      `gorm:"size:16;not null;default:'pending'" json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type PointPackage struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Point    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"point"`
	Price    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"price"`
	Currency string          `gorm:"size:8;not null" json:"currency"`
}

type TransactionHistory struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	UserID           uint            `gorm:"not null;index" json:"user_id"`
	PackageID        uint            `gorm:"not null" json:"package_id"`
	Quantity         int             `gorm:"not null" json:"quantity"`
	Point            decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"point"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency         string          `gorm:"size:8;not null" json:"currency"`
	PaymentReference string          `gorm:"size:255;not null;uniqueIndex" json:"payment_reference"`
	CreatedAt        time.Time       `json:"created_at"`
}
