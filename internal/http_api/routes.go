package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/health", s.health)

	api := s.router.Group("/api/v1", s.authenticate())

	api.GET("/timestamps", s.listTimestamps)
	api.POST("/timestamps", s.recordTimestamp)
	api.PATCH("/timestamps/:id", s.updateTimestamp)
	api.DELETE("/timestamps/:id", s.deleteTimestamp)

	api.POST("/applications", s.createApplication)
	api.POST("/applications/:id/approve", s.approveApplication)
	api.POST("/applications/:id/reject", s.rejectApplication)
	api.DELETE("/applications/:id", s.cancelApplication)
	api.GET("/applications/:id/history", s.applicationHistory)

	api.POST("/payment-requests", s.createPaymentRequest)
	api.GET("/payment-requests/:id", s.getPaymentRequest)
	api.POST("/payment-requests/:id/execute", s.executePayment)
	api.POST("/payment-requests/:id/manual-completion", s.completeManualPayment)
	api.GET("/payment-requests/:id/verify", s.requireAdmin(), s.verifyPaymentHash)

	api.GET("/addresses", s.listAddresses)
	api.POST("/addresses", s.addAddress)
	api.PUT("/addresses/:id/default", s.setDefaultAddress)
	api.DELETE("/addresses/:id", s.deleteAddress)

	api.POST("/wallets", s.addWallet)
	api.GET("/balances/:address", s.requireAdmin(), s.balance)
	api.POST("/reconcile", s.requireAdmin(), s.reconcile)
}
