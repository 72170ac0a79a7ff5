package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PlaceholderStatus marks responses from routes that do no work yet.
const PlaceholderStatus = "placeholder"

// placeholder answers 200 with a fixed message. Named path params are
// echoed back under the given response keys.
func placeholder(message string, echo map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{
			"message": message,
			"status":  PlaceholderStatus,
		}
		for param, key := range echo {
			body[key] = chi.URLParam(r, param)
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// PlaceholderRoutes returns the legacy /api surface. Every route accepts
// any body and returns {message, status: "placeholder"}; the job routes
// also echo the path id as jobId.
func PlaceholderRoutes() http.Handler {
	r := chi.NewRouter()
	jobID := map[string]string{"id": "jobId"}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", placeholder("Register endpoint - Coming soon", nil))
		r.Post("/login", placeholder("Login endpoint - Coming soon", nil))
		r.Post("/logout", placeholder("Logout endpoint - Coming soon", nil))
		r.Get("/me", placeholder("Get current user endpoint - Coming soon", nil))
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/create", placeholder("Create job endpoint - Coming soon", nil))
		r.Get("/user/history", placeholder("Job history endpoint - Coming soon", nil))
		r.Get("/{id}", placeholder("Get job status endpoint - Coming soon", jobID))
		r.Post("/{id}/callback", placeholder("Job callback endpoint - Coming soon", jobID))
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/create-order", placeholder("Create payment order endpoint - Coming soon", nil))
		r.Post("/verify", placeholder("Verify payment endpoint - Coming soon", nil))
		r.Post("/webhook", placeholder("Payment webhook endpoint - Coming soon", nil))
		r.Get("/history", placeholder("Payment history endpoint - Coming soon", nil))
	})

	r.Route("/generate", func(r chi.Router) {
		r.Post("/chat", placeholder("Chat generation endpoint - Coming soon", nil))
		r.Post("/image", placeholder("Image generation endpoint - Coming soon", nil))
		r.Post("/image-to-video", placeholder("Image to video endpoint - Coming soon", nil))
		r.Post("/text-to-speech", placeholder("Text to speech endpoint - Coming soon", nil))
		r.Post("/audio-to-video", placeholder("Audio to video endpoint - Coming soon", nil))
		r.Post("/ugc-video", placeholder("UGC video endpoint - Coming soon", nil))
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/profile", placeholder("Get profile endpoint - Coming soon", nil))
		r.Put("/profile", placeholder("Update profile endpoint - Coming soon", nil))
		r.Get("/credits", placeholder("Get credits endpoint - Coming soon", nil))
		r.Post("/credits/add", placeholder("Add credits endpoint - Coming soon", nil))
	})

	return r
}
