package main

import (
	"os"
	"strconv"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/bridge"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/config"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/connection"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/database"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/event"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/server"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/service"
)

func main() {
	cfg, err := config.ReadConfig()
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		return
	}
	loggerCallback := logger.Init()
	logger.Debug("Application initializing...")

	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)

	err = database.ConnectDatabase()
	if err != nil {
		logger.FatalF("Error occured while initializing database, details: %v", err)
		return
	}

	br, err := bridge.Connect(cfg.Nats.URL, cfg.AppName)
	if err != nil {
		logger.FatalF("Error occured while connecting bridge, details: %v", err)
		return
	}
	cleaner.Add(bridge.NewBridgeCloseCallback(br))

	registry := connection.NewRegistry()
	store := database.NewDatabaseStore()
	svc := service.NewChatService(registry, br, store, store, store, store)
	br.Start(svc.HandleBridgeMessage)

	// 中断退出前把落库的在线状态全部重置为离线
	cleaner.Add(service.NewResetCallback(svc))

	host := cfg.AppHost
	port := cfg.AppPort
	// 命令行参数优先：chat-server <host> <port>
	if len(os.Args) >= 3 {
		host = os.Args[1]
		p, err := strconv.Atoi(os.Args[2])
		if err != nil {
			logger.FatalF("Invalid port argument %s", os.Args[2])
			return
		}
		port = p
	}

	server.StartServer(host, port, svc)
}
