package agent

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// SystemInstruction returns the system prompt for the BGV agent.
func SystemInstruction(loginURL string) string {
	return render(systemTemplate, map[string]any{"LoginURL": loginURL})
}

// OnboardingData fills the onboarding prompt.
type OnboardingData struct {
	BGVRequestID   int64
	CandidateName  string
	CandidateEmail string
	TempPassword   string
	LoginURL       string
}

// OnboardingPrompt renders the combined credentials and document request.
func OnboardingPrompt(d OnboardingData) string {
	return render(onboardingTemplate, d)
}

// ReminderData fills the reminder prompt.
type ReminderData struct {
	BGVRequestID int64
	Trigger      string
	DaysPending  int
	LoginURL     string
}

// ReminderPrompt renders a document-submission reminder.
func ReminderPrompt(d ReminderData) string {
	return render(reminderTemplate, d)
}

// LoginURL joins the frontend base URL with the login path.
func LoginURL(frontendURL string) string {
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}
	return strings.TrimRight(frontendURL, "/") + "/login"
}

func render(t *template.Template, data any) string {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		// Templates are fixed at compile time; a failure is a programming error.
		panic(fmt.Sprintf("render %s prompt: %v", t.Name(), err))
	}
	return b.String()
}

var systemTemplate = template.Must(template.New("system").Parse(
	`You are an AI agent for TraqCheck Background Verification System.

Your responsibilities:
1. Analyze candidate profiles and generate personalized communications
2. Send professional, contextually-appropriate emails to candidates
3. Log all actions for audit trail
4. Update system status appropriately
5. Handle follow-ups with context-aware reminders

Email Personalization Guidelines:
- Seniority Analysis:
  - Junior (0-3 years): Friendly, encouraging tone with simple language
  - Mid-level (3-7 years): Professional, direct tone with clear instructions
  - Senior (7+ years): Formal, respectful tone acknowledging their experience
- Urgency Assessment:
  - Leadership roles (CTO, VP, Director, etc.): Emphasize importance and priority
  - Standard roles: Standard professional tone
- Email Structure:
  - Personalized greeting with candidate name
  - Acknowledge their role and experience (for mid/senior level)
  - Clear, concise instructions
  - Professional closing appropriate to seniority level
  - Always use HTML formatting

Standard Documents Required:
- PAN Card (Identity Verification)
- Aadhaar Card (Address Verification)

Important Rules:
- ALWAYS use tools to perform actions - never make assumptions
- Verify the result of each tool call before proceeding
- If a tool fails, stop and explain the error
- Never include passwords or other secrets in log messages

Frontend URL for login: {{.LoginURL}}
`))

var onboardingTemplate = template.Must(template.New("onboarding").Parse(
	`Complete onboarding for a new candidate: send credentials AND request documents.

Candidate Information:
- BGV Request ID: {{.BGVRequestID}}
- Name: {{.CandidateName}}
- Email: {{.CandidateEmail}}
- Temporary Password: {{.TempPassword}}

Complete ALL steps in ONE workflow:
1. Fetch the candidate's profile using fetch_bgv_request
2. Analyze seniority and role using analyze_candidate_profile
3. Compose ONE personalized onboarding email that includes BOTH:
   a) Login credentials (email + temporary password)
   b) Document request (PAN Card and Aadhaar Card)
4. Send the email using send_email_to_candidate
5. Log the action using log_agent_action (action='request_sent')
6. Update status to 'documents_requested' using update_bgv_status

The email MUST include:
- Login URL: {{.LoginURL}}
- Email: {{.CandidateEmail}}
- Temporary Password: {{.TempPassword}}
- An instruction to change the password after first login
- The required documents and a clear call-to-action to upload them

Begin!
`))

var reminderTemplate = template.Must(template.New("reminder").Parse(
	`Send a document submission reminder to a candidate.

BGV Request ID: {{.BGVRequestID}}
Trigger: {{.Trigger}}
Days pending: {{.DaysPending}}

Steps:
1. Fetch the BGV request details and previous reminders using fetch_bgv_request
2. Choose the tone from the days pending:
   - 3-5 days: Gentle reminder
   - 6-10 days: More urgent tone
   - 10+ days: Strong emphasis on importance
3. Compose and send the reminder using send_email_to_candidate

The reminder must include the login URL ({{.LoginURL}}) and list the
required documents. The service records the reminder in the audit log;
do not log it yourself.

Begin!
`))
