package service

// Spoken fallbacks returned with step errors. Each one apologises and offers
// the caller another way forward.
const (
	uttGeneric            = "Sorry, something went wrong on my side. Our team will follow up with you by email."
	uttOutOfOrder         = "Sorry, let's finish the current step first."
	uttCallClosed         = "This call has already been wrapped up. Our team will follow up if anything is missing."
	uttFactsInvalid       = "Sorry, I didn't catch that. Which countries will you be messaging, and roughly how many messages a month?"
	uttConsentNeeded      = "Before I look you up, may I save your details in our system?"
	uttCRMUnavailable     = "Sorry, I can't reach our customer system right now. I'll make a note and our team will follow up by email."
	uttSlotBusy           = "That time is already taken. Could you suggest another time that works for you?"
	uttSlotInvalid        = "Sorry, I couldn't use that time. Could you give me a day and time in the future, no longer than four hours?"
	uttSlotNotQualified   = "A call with our team isn't needed for your plan. I can send you everything you need by email instead."
	uttSlotAlreadyBooked  = "Your meeting is already booked. I'll send the details with the invite."
	uttCalendarDown       = "Sorry, I can't check the calendar at the moment. I'll email you so we can find a time that works."
	uttSMSFailed          = "Sorry, I couldn't send you a text. Could you spell your email address for me instead?"
	uttEmailInvalid       = "Sorry, that email address doesn't look right. Could you spell it again?"
	uttEmailConsentNeeded = "Would you like me to email you our messaging policy? If so, I'll need your email address."
	uttEmailPending       = "Could you share your email address, or would you rather not?"
	uttSlotPending        = "Let's pick a time for a call with our team first. What day and time suit you?"
	uttContactPending     = "Let me look up your details first."
)
