package signup

import (
	"sync"
	"time"
)

// RegistryConfig は訪問者ごとのControllerの保持設定。
type RegistryConfig struct {
	IdleTTL         time.Duration // 最終アクセスからこの時間を超えたエントリを削除する
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
	Gauge           VisitorGauge  // 保持している訪問者数の報告先（nil可）
}

// VisitorGauge は保持している訪問者数を受け取る。
type VisitorGauge interface {
	SetActiveVisitors(n int)
}

// DefaultRegistryConfig はデフォルトの保持設定を返す。
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		IdleTTL:         30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// visitorEntry は訪問者のControllerとアクセス時刻を保持する。
type visitorEntry struct {
	controller *Controller
	lastAccess time.Time
}

// Registry は訪問者IDごとにControllerを管理する。
// 全Controllerは同じDepsを共有する。
type Registry struct {
	deps   Deps
	config RegistryConfig
	now    func() time.Time

	mu       sync.RWMutex
	visitors map[string]*visitorEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRegistry は新しいRegistryを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRegistry(deps Deps, config RegistryConfig) *Registry {
	r := newRegistry(deps, config)
	go r.cleanupLoop()
	return r
}

func newRegistry(deps Deps, config RegistryConfig) *Registry {
	def := DefaultRegistryConfig()
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	return &Registry{
		deps:     deps,
		config:   config,
		now:      time.Now,
		visitors: make(map[string]*visitorEntry),
		stopCh:   make(chan struct{}),
	}
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Get は訪問者のControllerを取得または作成する。
// 参照とlastAccessの更新を同じロック内で行い、cleanupで外れたエントリを返さない。
func (r *Registry) Get(visitorID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.visitors[visitorID]; exists {
		e.lastAccess = r.now()
		return e.controller
	}

	c := NewController(r.deps)
	r.visitors[visitorID] = &visitorEntry{
		controller: c,
		lastAccess: r.now(),
	}
	r.reportLocked()
	return c
}

// Len は現在保持している訪問者数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.visitors)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからIdleTTLを超えたエントリを削除する。
// 送信中のControllerは削除しない。
func (r *Registry) cleanup() {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.visitors {
		if now.Sub(e.lastAccess) <= r.config.IdleTTL {
			continue
		}
		if e.controller.State().Submitting {
			continue
		}
		delete(r.visitors, id)
	}
	r.reportLocked()
}

// reportLocked は訪問者数をGaugeへ報告する。r.muを保持して呼び出すこと。
func (r *Registry) reportLocked() {
	if r.config.Gauge != nil {
		r.config.Gauge.SetActiveVisitors(len(r.visitors))
	}
}
