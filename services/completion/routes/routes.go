// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/AleutianAI/AleutianComplete/services/completion/dispatch"
	"github.com/AleutianAI/AleutianComplete/services/completion/handlers"
	"github.com/AleutianAI/AleutianComplete/services/completion/middleware"
	"github.com/AleutianAI/AleutianComplete/services/completion/store"
	"github.com/AleutianAI/AleutianComplete/services/completion/study"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, st *study.Study, dispatcher *dispatch.Dispatcher,
	recordStore *store.Store, surveyLink string, metricsEnabled bool, fatal handlers.FatalFunc) {

	router.GET("/health", handlers.HealthCheck)
	if metricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	router.GET("/survey", handlers.HandleSurvey(surveyLink))

	// API version 1 group; everything under it requires a bearer token.
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware())
	{
		prediction := v1.Group("/prediction")
		{
			prediction.POST("/autocomplete", handlers.HandleAutocomplete(st, dispatcher, recordStore, fatal))
			prediction.POST("/verify", handlers.HandleVerify(recordStore))
		}
	}
}
