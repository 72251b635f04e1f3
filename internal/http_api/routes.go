package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.POST("/webhook/cryptopay", s.cryptoPayWebhook)
	s.router.POST("/webhook/merchant", s.merchantWebhook)
	s.router.GET("/api/v1/status", s.status)
}
