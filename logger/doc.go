// Package logger provides structured logging for the pipeline core,
// built on zerolog.
//
// Components obtain a tagged logger via WithComponent and attach
// map-based fields per event:
//
//	log := logger.NewDefault("flowerpower").WithComponent("dag")
//	log.Info("graph composed", map[string]interface{}{"nodes": 7})
package logger
