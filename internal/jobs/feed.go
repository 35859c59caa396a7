package jobs

// FallbackFeed is the built-in listings feed shown when no scan has run yet
// and the backend has no per-user feed to offer.
func FallbackFeed() *Jobs {
	return &Jobs{Items: []*Job{
		{
			ID:       "job-1",
			Title:    "Backend Engineer (Go)",
			Company:  "Stripe",
			Location: "Remote / USA",
			ATSScore: 88,
			Missing: MissingSkills{
				Required:  []string{"Redis", "gRPC"},
				Preferred: []string{"Bazel", "Observability"},
			},
			ApplyURL:  "https://example.com/apply/stripe-backend",
			Source:    "lever",
			ScannedAt: "latest",
		},
		{
			ID:       "job-2",
			Title:    "Full Stack Developer",
			Company:  "Google",
			Location: "Austin, TX",
			ATSScore: 83,
			Missing: MissingSkills{
				Required:  []string{"GraphQL"},
				Preferred: []string{"Next.js Advanced", "Kubernetes"},
			},
			ApplyURL:  "https://example.com/apply/google-fullstack",
			Source:    "greenhouse",
			ScannedAt: "latest",
		},
		{
			ID:       "job-3",
			Title:    "Platform Engineer",
			Company:  "Amazon",
			Location: "Seattle, WA",
			ATSScore: 76,
			Missing: MissingSkills{
				Required:  []string{"Terraform"},
				Preferred: []string{"SRE Practices", "Cost Optimization"},
			},
			ApplyURL:  "https://example.com/apply/amazon-platform",
			Source:    "other",
			ScannedAt: "latest",
		},
	}}
}
