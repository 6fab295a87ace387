package reply

// Category maps a fixed set of keywords to one canned reply.
type Category struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
	Reply    string   `json:"reply"`
}

// Seed returns the site's keyword categories in priority order. Earlier
// entries win when a message matches more than one.
func Seed() []Category {
	return []Category{
		{
			ID:       "pricing",
			Title:    "Pricing",
			Keywords: []string{"pricing", "cost", "quote"},
			Reply:    "Our pricing varies based on project requirements. To get a personalized quote, please provide some details about your project or leave your email and we'll get back to you soon.",
		},
		{
			ID:       "contact",
			Title:    "Contact",
			Keywords: []string{"contact", "speak", "talk"},
			Reply:    "You can reach our team at info@yourcompany.com or call us at +123 456 7890. Alternatively, you can fill out the contact form on this page.",
		},
		{
			ID:       "services",
			Title:    "Services",
			Keywords: []string{"services", "offer"},
			Reply:    "We offer web development, mobile app development, UI/UX design, digital marketing, cloud solutions, and consulting services. Which service are you interested in learning more about?",
		},
		{
			ID:       "website",
			Title:    "Web development",
			Keywords: []string{"website", "web"},
			Reply:    "Our web development team creates responsive, high-performance websites and web applications using the latest technologies. Would you like to discuss a potential website project?",
		},
		{
			ID:       "app",
			Title:    "Mobile apps",
			Keywords: []string{"app", "mobile"},
			Reply:    "We develop native and cross-platform mobile applications for iOS and Android. Our apps are designed with user experience as a priority. What kind of app are you looking to build?",
		},
		{
			ID:       "thanks",
			Title:    "Thanks",
			Keywords: []string{"thanks", "thank you"},
			Reply:    "You're welcome! Is there anything else I can help you with today?",
		},
	}
}

// SeedFallbacks returns the replies used when no category matches.
func SeedFallbacks() []string {
	return []string{
		"Thank you for reaching out. To better assist you, could you provide more details about what you're looking for?",
		"I'd be happy to help you with that. Could you elaborate a bit more so I can provide the most relevant information?",
		"Thanks for your message. A team member will get back to you soon, or you can provide more details for immediate assistance.",
		"I understand. Would you like to schedule a consultation with our team to discuss this further?",
	}
}
