package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	gw := s.echo.Group(s.config.GatewayPath, s.middleware.JWT.RequireJWT())
	gw.GET("", s.websocketSession)
	gw.POST("/poll", s.openPollSession)
	gw.GET("/poll/:sid", s.pollFrames)
	gw.POST("/poll/:sid", s.postFrame)
	gw.DELETE("/poll/:sid", s.closePollSession)

	internal := s.echo.Group("/internal", s.middleware.GatewayKey.RequireKey())
	internal.POST("/conversations/:id/events", s.publishEvent, s.middleware.RateLimit.ByParam("id"))
}
