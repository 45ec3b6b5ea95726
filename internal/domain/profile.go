package domain

import (
	"fmt"
	"strings"
)

// Seniority buckets candidates by total years of experience.
type Seniority string

// Seniority levels
const (
	SeniorityJunior Seniority = "junior"
	SeniorityMid    Seniority = "mid-level"
	SenioritySenior Seniority = "senior"
)

var leadershipKeywords = []string{"cto", "vp", "director", "head", "lead", "principal", "chief"}

// ProfileAnalysis drives the tone of candidate emails.
type ProfileAnalysis struct {
	Seniority         Seniority `json:"seniority"`
	Tone              string    `json:"tone"`
	TotalExperience   int       `json:"total_experience"`
	Role              string    `json:"role"`
	IsLeadership      bool      `json:"is_leadership"`
	RequiredDocuments []string  `json:"required_documents"`
	Recommendation    string    `json:"recommendation"`
}

// AnalyzeProfile classifies a candidate: up to 3 years is junior, up to 7
// mid-level, anything above senior. Leadership roles are flagged so the
// email can stress priority.
func AnalyzeProfile(totalExperience int, role string) ProfileAnalysis {
	var (
		seniority Seniority
		tone      string
	)
	switch {
	case totalExperience <= 3:
		seniority, tone = SeniorityJunior, "friendly and encouraging"
	case totalExperience <= 7:
		seniority, tone = SeniorityMid, "professional and direct"
	default:
		seniority, tone = SenioritySenior, "formal and respectful"
	}

	lowerRole := strings.ToLower(role)
	leadership := false
	for _, keyword := range leadershipKeywords {
		if strings.Contains(lowerRole, keyword) {
			leadership = true
			break
		}
	}

	return ProfileAnalysis{
		Seniority:         seniority,
		Tone:              tone,
		TotalExperience:   totalExperience,
		Role:              role,
		IsLeadership:      leadership,
		RequiredDocuments: RequiredDocuments,
		Recommendation: fmt.Sprintf("Use %s tone for communication. Candidate has %d years of experience.",
			tone, totalExperience),
	}
}
