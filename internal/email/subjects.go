package email

const (
	subjectOnboarding    = "Get started with messaging in minutes"
	subjectAcceptableUse = "Your messaging use case and our policy"
	subjectFollowUp      = "Following up on your call with our sales team"
)
