package tcpcore

import "errors"

var (
	// ErrInvalidArgument 参数非法
	ErrInvalidArgument = errors.New("tcpcore: invalid argument")

	// ErrStart 分发循环未能启动，此时没有任何后台 goroutine 在运行
	ErrStart = errors.New("tcpcore: dispatcher could not be started")

	// ErrAccept accept 失败；仅记录日志，循环继续
	ErrAccept = errors.New("tcpcore: accept failed")

	// ErrRegistration 新连接无法加入就绪通知；该连接被关闭，服务继续
	ErrRegistration = errors.New("tcpcore: readiness registration failed")

	// ErrRegistryFull 客户端表已达 MaxClients；该连接被关闭，服务继续
	ErrRegistryFull = errors.New("tcpcore: client registry full")

	// ErrHandlerPanic handler 发生 panic；按 CloseClient 处理
	ErrHandlerPanic = errors.New("tcpcore: handler panicked")
)
