package email

// Plain-text email templates. Every template receives a notification.TemplateData.

// ConfirmationTemplate - credit request approved
const ConfirmationTemplate = `Dear {{.Name}},

Your credit request has been approved and credited to your account.
Amount: {{.Amount}}
Due date: {{.DueDate}}

Thank you,
Khatabook Team
`

// OverdueAlertTemplate - reminder before the due date, on it, and after it
const OverdueAlertTemplate = `Dear {{.Name}},

{{if eq .Stage "before_due"}}Your credit of {{.Amount}} is due on {{.DueDate}}, in {{.Days}} days. Please plan to settle it on time.
{{else if eq .Stage "due_today"}}Your credit of {{.Amount}} is due today ({{.DueDate}}). Please settle the amount today.
{{else}}Your credit due on {{.DueDate}} is overdue. Please settle the amount of {{.Amount}} immediately.
{{end}}
Thank you,
Khatabook Team
`

// BadDebtWarningTemplate - account flagged as bad debt
const BadDebtWarningTemplate = `Dear {{.Name}},

You have bad debt flagged due to unpaid credits for over {{.Days}} days.
Please contact us immediately to resolve this issue.

Thank you,
Khatabook Team
`
