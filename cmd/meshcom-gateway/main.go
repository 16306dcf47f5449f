package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/meshcom-gateway/meshcom-server/internal/api"
	"github.com/meshcom-gateway/meshcom-server/internal/auth"
	"github.com/meshcom-gateway/meshcom-server/internal/config"
	"github.com/meshcom-gateway/meshcom-server/internal/gateway"
	"github.com/meshcom-gateway/meshcom-server/internal/integration"
	"github.com/meshcom-gateway/meshcom-server/internal/metrics"
	"github.com/meshcom-gateway/meshcom-server/internal/server"
	"github.com/meshcom-gateway/meshcom-server/internal/storage"
)

func main() {
	// 命令行参数
	var configPath = flag.String("config", "config/meshcom-gateway.yml", "配置文件路径")
	var validateOnly = flag.Bool("validate", false, "仅验证配置文件")
	var showConfig = flag.Bool("show-config", false, "显示配置并退出")
	var hashPassword = flag.String("hash-password", "", "生成 API 用户密码哈希并退出")
	flag.Parse()

	// 设置日志
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("生成密码哈希失败")
		}
		fmt.Println(hash)
		return
	}

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("加载配置失败")
	}

	setupLogging(cfg.Log)

	// 如果只是显示配置，打印后退出
	if *showConfig {
		cfg.PrintConfigSummary()
		return
	}

	// 如果只是验证配置，打印摘要后退出
	if *validateOnly {
		cfg.PrintConfigSummary()
		fmt.Println("✅ 配置文件验证通过")
		return
	}

	log.Info().
		Str("config_path", *configPath).
		Str("my_call", cfg.Gateway.MyCall).
		Strs("groups", cfg.Gateway.GroupList()).
		Msg("MeshCom Gateway 启动")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	opts := gateway.Options{
		BindAddr:      cfg.Gateway.BindAddr(),
		DefaultTarget: cfg.Gateway.DefaultTarget,
		DefaultPort:   cfg.Gateway.DefaultPort,
		ReadBuffer:    cfg.Gateway.ReadBuffer,
		NotifyQueue:   cfg.Gateway.NotifyQueue,
		Metrics:       m,
	}

	// 连接数据库（可选）
	var store storage.Store
	var recorder *storage.Recorder
	if cfg.Database.DSN != "" {
		pg, err := storage.NewPostgresStore(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("连接数据库失败")
		}
		defer pg.Close()

		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = pg.Migrate(migrateCtx)
		migrateCancel()
		if err != nil {
			log.Fatal().Err(err).Msg("数据库迁移失败")
		}

		store = pg
		recorder = storage.NewRecorder(store, cfg.Gateway.MyCall)
		opts.Events = recorder
		log.Info().Msg("已连接到数据库")
	} else {
		log.Info().Msg("未配置数据库，不保存消息历史")
	}

	// 连接 NATS（可选）
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = connectNATS(&cfg.NATS)
		if err != nil {
			log.Warn().Err(err).Msg("连接 NATS 失败，继续运行但不发布事件")
		} else {
			defer nc.Close()
			log.Info().Str("url", cfg.NATS.URL).Msg("已连接到 NATS")
		}
	}

	// 外部集成（可选）
	forwarder := integration.NewForwarder()
	if cfg.MQTT.Enabled {
		client, err := integration.NewMQTTClient(&cfg.MQTT)
		if err != nil {
			log.Warn().Err(err).Msg("连接 MQTT 失败，跳过 MQTT 转发")
		} else {
			forwarder.WithMQTT(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS)
		}
	}
	if cfg.Kafka.Enabled {
		forwarder.WithKafka(integration.NewKafkaWriter(&cfg.Kafka))
	}
	if forwarder.Enabled() {
		defer forwarder.Close()
		opts.Publishers = append(opts.Publishers, forwarder)
	}

	var bridge *server.NATSBridge
	if nc != nil {
		bridge = server.NewNATSBridge(nc, cfg.NATS.SubjectPrefix)
		opts.Publishers = append(opts.Publishers, bridge)
	}

	// 创建网关会话
	gw := gateway.NewSession(cfg.Gateway.Identity(), opts)
	if err := gw.Bind(); err != nil {
		log.Fatal().Err(err).Str("addr", opts.BindAddr).Msg("绑定 UDP 端口失败")
	}

	if recorder != nil {
		gw.RegisterListener(recorder.Handle)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// 启动 UDP 接收循环
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gw.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("UDP 网关停止")
			cancel()
		}
	}()

	// 启动 NATS 桥
	if bridge != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bridge.Start(ctx, gw); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("NATS 桥停止")
			}
		}()
	}

	// 启动 REST API
	var apiServer *api.RESTServer
	if cfg.API.Enabled {
		var metricsHandler http.Handler
		if cfg.Metrics.Enabled {
			metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
		}
		apiServer = api.NewRESTServer(cfg, gw, store, metricsHandler)

		wg.Add(1)
		go func() {
			defer wg.Done()
			addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
			if err := apiServer.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("REST API 服务失败")
				cancel()
			}
		}()
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn().Err(err).Msg("systemd 通知失败")
	} else if ok {
		log.Debug().Msg("已通知 systemd 就绪")
	}

	// 处理系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("收到退出信号，正在关闭...")
	case <-ctx.Done():
		log.Info().Msg("上下文取消，正在关闭...")
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)

	cancel()

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("REST API 关闭失败")
		}
		shutdownCancel()
	}

	gw.Close()
	wg.Wait()

	// 等待监听器处理完已排队的消息
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := gw.Wait(waitCtx); err != nil {
		log.Warn().Err(err).Msg("等待监听器退出超时")
	}
	waitCancel()

	log.Info().Msg("MeshCom Gateway 已停止")
}

// setupLogging 设置日志格式和级别
func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("无效的日志级别，使用info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// connectNATS 连接 NATS，断线自动重连
func connectNATS(cfg *config.NATSConfig) (*nats.Conn, error) {
	return nats.Connect(cfg.URL,
		nats.Name("meshcom-gateway"),
		nats.UserInfo(cfg.Username, cfg.Password),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS 连接断开")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Msg("NATS 已重连")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS 错误")
		}),
	)
}
