package telemetry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// windowSeconds 滑动窗口长度（秒）
const windowSeconds = 60

// Collector 实时写入数据采集器
//
// 在写入路径上按秒累计记录数，实时接口直接读取内存数据，不查询数据库。
type Collector struct {
	// 每秒写入数的环形窗口
	counts        [windowSeconds]int64
	currentSecond int64
	mu            sync.RWMutex

	// 正在处理的写入请求数
	inFlight atomic.Int64

	stop      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewCollector 创建采集器并启动后台清理协程，使用完毕后需调用 Close
func NewCollector(logger *slog.Logger) *Collector {
	c := &Collector{
		currentSecond: time.Now().Unix(),
		stop:          make(chan struct{}),
		logger:        logger.WithGroup("collector"),
	}
	go c.cleanup()
	c.logger.Info("实时数据采集器初始化完成")
	return c
}

// RecordEvent 记录一次成功写入
func (c *Collector) RecordEvent() {
	now := time.Now().Unix()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advance(now)
	c.counts[now%windowSeconds]++
}

// advance 清空从上次更新到 now 之间的槽位，调用方需持有写锁
func (c *Collector) advance(now int64) {
	if now <= c.currentSecond {
		return
	}
	from := c.currentSecond + 1
	if now-c.currentSecond > windowSeconds {
		from = now - windowSeconds + 1
	}
	for i := from; i <= now; i++ {
		c.counts[i%windowSeconds] = 0
	}
	c.currentSecond = now
}

// Begin 标记一个写入请求开始处理
func (c *Collector) Begin() {
	n := c.inFlight.Add(1)
	c.logger.Debug("写入请求开始", "in_flight", n)
}

// End 标记一个写入请求处理结束
func (c *Collector) End() {
	n := c.inFlight.Add(-1)
	c.logger.Debug("写入请求结束", "in_flight", n)
}

// RPM 获取过去 1 分钟的写入数
func (c *Collector) RPM() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now().Unix()
	var total int64
	for i := int64(0); i < windowSeconds; i++ {
		sec := now - i
		if sec > c.currentSecond || c.currentSecond-sec >= windowSeconds {
			continue
		}
		total += c.counts[sec%windowSeconds]
	}
	return total
}

// InFlight 获取正在处理的写入请求数
func (c *Collector) InFlight() int64 {
	return c.inFlight.Load()
}

// Close 停止后台清理协程，可重复调用
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.logger.Info("实时数据采集器已停止")
	})
}

// cleanup 定期清理过期数据
func (c *Collector) cleanup() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.advance(time.Now().Unix())
			c.mu.Unlock()
		}
	}
}
