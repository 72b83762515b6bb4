package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zoeyai/shapeid/internal/logger"
	"github.com/zoeyai/shapeid/pkg/config"
	"github.com/zoeyai/shapeid/pkg/library"
	"github.com/zoeyai/shapeid/pkg/screen"
	"github.com/zoeyai/shapeid/pkg/service"
	"github.com/zoeyai/shapeid/pkg/shapeid"
	"github.com/zoeyai/shapeid/pkg/vision/cv"
	"github.com/zoeyai/shapeid/pkg/vision/imgproc"
	"github.com/zoeyai/shapeid/pkg/vision/ncc"
)

// 版本信息 (可通过 ldflags 注入)
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 命令行参数
	var (
		inputPath   = flag.String("input", "", "输入图像路径")
		useScreen   = flag.Bool("screen", false, "使用屏幕截图作为输入")
		region      = flag.String("region", "", "截图区域 x,y,w,h (配合 -screen)")
		libraryPath = flag.String("library", "", "模板库目录或 YAML 清单")
		area        = flag.String("area", "", "搜索区域: full / top / bottom")
		threshold   = flag.Float64("threshold", 0.05, "标注阈值")
		workers     = flag.Int("workers", 0, "并发数 (0 表示使用配置)")
		backend     = flag.String("backend", "", "匹配后端: ncc / opencv")
		method      = flag.String("method", "", "相关方法: ccoeff / ccorr")
		label       = flag.Bool("label", false, "在胜出模板旁绘制名称和置信度")
		output      = flag.String("output", "", "标注图输出路径")
		serve       = flag.Bool("serve", false, "以服务模式运行")
		listenAddr  = flag.String("listen", "", "gRPC 监听地址")
		wsAddr      = flag.String("ws", "", "WebSocket 监听地址")
		logLevel    = flag.String("log-level", "", "日志级别: debug / info / warn / error")
		logFile     = flag.String("log-file", "", "日志文件路径")
		saveConfig  = flag.Bool("save", false, "保存配置到本地")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	// 显示版本
	if *showVersion {
		printVersion()
		return
	}

	// 显示帮助
	if *showHelp {
		printHelp()
		return
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("[WARN] 加载配置失败: %v\n", err)
	}

	// 命令行参数优先级高于配置文件，只覆盖显式设置的参数
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "library":
			cfg.Library = *libraryPath
		case "area":
			cfg.Area = *area
		case "threshold":
			cfg.Threshold = *threshold
		case "workers":
			cfg.Workers = *workers
		case "backend":
			cfg.Backend = *backend
		case "method":
			cfg.Method = *method
		case "label":
			cfg.Label = *label
		case "output":
			cfg.Output = *output
		case "listen":
			cfg.ListenAddr = *listenAddr
		case "ws":
			cfg.WebSocketAddr = *wsAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-file":
			cfg.LogFile = *logFile
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Printf("[ERROR] 配置无效: %v\n", err)
		os.Exit(1)
	}

	log := logger.Default()
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if cfg.LogFile != "" {
		if err := log.SetFile(true, cfg.LogFile); err != nil {
			fmt.Printf("[WARN] %v\n", err)
		}
	}
	defer log.Close()

	// 保存配置
	if *saveConfig {
		if err := config.Save(cfg); err != nil {
			log.Warn("保存配置失败: %v", err)
		} else {
			log.Info("配置已保存到 %s", config.GetDefaultManager().GetConfigFile())
		}
	}

	opts, err := engineOptions(cfg)
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *serve {
		if err := runServer(ctx, cfg, opts); err != nil {
			log.Error("服务异常退出: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := runOnce(ctx, cfg, *inputPath, *useScreen, *region, opts); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

// engineOptions 由配置构建引擎选项
func engineOptions(cfg *config.Config) ([]shapeid.Option, error) {
	area, err := cfg.ParsedArea()
	if err != nil {
		return nil, err
	}
	method, err := ncc.ParseMethod(cfg.Method)
	if err != nil {
		return nil, err
	}
	correlator, err := cv.NewCorrelator(cv.Backend(cfg.Backend), method)
	if err != nil {
		return nil, err
	}
	return []shapeid.Option{
		shapeid.WithThreshold(cfg.Threshold),
		shapeid.WithArea(area),
		shapeid.WithWorkers(cfg.Workers),
		shapeid.WithCorrelator(correlator),
		shapeid.WithLabel(cfg.Label),
	}, nil
}

// runOnce 对单张图像执行一次识别
func runOnce(ctx context.Context, cfg *config.Config, inputPath string, useScreen bool, region string, opts []shapeid.Option) error {
	if cfg.Library == "" {
		printHelp()
		return errors.New("缺少模板库，请使用 -library 参数指定")
	}

	input, err := loadInput(inputPath, useScreen, region)
	if err != nil {
		return err
	}

	entries, err := library.Load(cfg.Library)
	if err != nil {
		return err
	}
	logger.Info("已加载 %d 个模板: %s", len(entries), cfg.Library)

	report, err := shapeid.New(opts...).Evaluate(ctx, input, entries)
	if err != nil {
		return pkgerrors.Wrap(err, "识别失败")
	}

	printReport(report)

	detail := "无匹配"
	if w, ok := report.Winner(); ok {
		detail = fmt.Sprintf("%s %.4f @(%d,%d)", w.Name, w.Score, w.Location.X, w.Location.Y)
	}
	logger.LogEvent("eval", report.Matched, float64(report.Elapsed.Microseconds())/1000, detail)

	if cfg.Output != "" {
		if err := library.SaveImage(cfg.Output, report.Annotated); err != nil {
			return err
		}
		logger.Info("标注图已保存到 %s", cfg.Output)
	}
	return nil
}

// loadInput 读取输入图像或截屏
func loadInput(path string, useScreen bool, region string) (image.Image, error) {
	switch {
	case useScreen && path != "":
		return nil, errors.New("-input 与 -screen 不能同时使用")
	case region != "" && !useScreen:
		return nil, errors.New("-region 只能与 -screen 一起使用")
	case useScreen:
		if !screen.CanCapture() {
			screen.OpenCaptureSettings()
			return nil, errors.New(screen.PermissionHint())
		}
		w, h := screen.GetScreenSize()
		logger.Debug("屏幕: %dx%d, 显示器数量: %d", w, h, screen.GetDisplayCount())
		if region == "" {
			return screen.CaptureScreen()
		}
		r, err := imgproc.ParseRegion(region)
		if err != nil {
			return nil, err
		}
		return screen.CaptureRegion(r)
	case path != "":
		return library.LoadImage(path)
	default:
		return nil, errors.New("缺少输入，请使用 -input 或 -screen")
	}
}

// printReport 打印识别结果
func printReport(report *shapeid.Report) {
	fmt.Println("========================================")
	fmt.Printf("  区域: %s  %s  阈值: %.3f\n", report.Area, report.SearchRegion, report.Threshold)
	fmt.Println("========================================")
	for _, res := range report.Results {
		mark := " "
		if res.Index == report.Best {
			mark = "*"
		}
		if res.Status == shapeid.StatusSkipped {
			fmt.Printf("%s %3d  %-24s  %9s  %v\n", mark, res.Index, res.Name, "skipped", res.Err)
			continue
		}
		fmt.Printf("%s %3d  %-24s  %9.4f  (%d,%d) %dx%d\n", mark, res.Index, res.Name, res.Score,
			res.Location.X, res.Location.Y, res.Bounds.Dx(), res.Bounds.Dy())
	}
	fmt.Println()

	if w, ok := report.Winner(); ok {
		state := "低于阈值"
		if w.Matched {
			state = "已匹配"
		}
		fmt.Printf("最佳匹配: %s (%.4f, %s)\n", w.Name, w.Score, state)
	} else {
		fmt.Println("最佳匹配: 无")
	}
	fmt.Printf("耗时: %s\n", report.Elapsed.Round(time.Microsecond))
}

// runServer 启动 gRPC（及可选的 WebSocket）服务，直到 ctx 结束
func runServer(ctx context.Context, cfg *config.Config, opts []shapeid.Option) error {
	zl := logger.L().With(zap.String("component", "service"))
	srv := service.NewServer(zl, opts...)

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return pkgerrors.Wrapf(err, "监听 %s 失败", cfg.ListenAddr)
	}
	grpcServer := service.NewGRPCServer(srv)

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()

	fmt.Println("========================================")
	fmt.Printf("  ShapeID v%s\n", Version)
	fmt.Println("========================================")
	logger.Info("gRPC 服务已启动: %s", lis.Addr())

	var httpServer *http.Server
	if cfg.WebSocketAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(service.WebSocketPath, srv.WebSocketHandler())
		httpServer = &http.Server{Addr: cfg.WebSocketAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		logger.Info("WebSocket 服务已启动: ws://%s%s", cfg.WebSocketAddr, service.WebSocketPath)
	}
	logger.Info("按 Ctrl+C 退出")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("正在停止服务...")
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}
	grpcServer.GracefulStop()
	logger.Info("已退出")
	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("ShapeID v%s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("ShapeID - 模板库形状识别工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  shapeid [选项]")
	fmt.Println()
	fmt.Println("选项:")
	fmt.Println("  -input string      输入图像路径")
	fmt.Println("  -screen            使用屏幕截图作为输入")
	fmt.Println("  -region string     截图区域 x,y,w,h (配合 -screen)")
	fmt.Println("  -library string    模板库目录或 YAML 清单")
	fmt.Println("  -area string       搜索区域: full / top / bottom (默认 full)")
	fmt.Println("  -threshold float   标注阈值 (默认 0.05)")
	fmt.Println("  -workers int       并发数")
	fmt.Println("  -backend string    匹配后端: ncc / opencv (默认 ncc)")
	fmt.Println("  -method string     相关方法: ccoeff / ccorr (默认 ccoeff)")
	fmt.Println("  -label             在胜出模板旁绘制名称和置信度")
	fmt.Println("  -output string     标注图输出路径 (默认 annotated.png)")
	fmt.Println("  -serve             以服务模式运行")
	fmt.Println("  -listen string     gRPC 监听地址")
	fmt.Println("  -ws string         WebSocket 监听地址")
	fmt.Println("  -log-level string  日志级别")
	fmt.Println("  -log-file string   日志文件路径")
	fmt.Println("  -save              保存配置到本地")
	fmt.Println("  -version           显示版本信息")
	fmt.Println("  -help              显示帮助信息")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  # 在输入图像下半部分查找模板")
	fmt.Println("  shapeid -input scene.png -library ./shapes -area bottom -threshold 0.8")
	fmt.Println()
	fmt.Println("  # 使用屏幕截图并绘制标签")
	fmt.Println("  shapeid -screen -library shapes.yaml -label -output result.png")
	fmt.Println()
	fmt.Println("  # 只截取屏幕左上角 800x600")
	fmt.Println("  shapeid -screen -region 0,0,800,600 -library ./shapes")
	fmt.Println()
	fmt.Println("  # 启动服务")
	fmt.Println("  shapeid -serve -listen :50061 -ws :8080")
	fmt.Println()
	fmt.Printf("配置文件位置: %s\n", config.GetDefaultManager().GetConfigFile())
}
