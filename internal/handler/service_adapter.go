package handler

import (
	"github.com/hitoshi/launchpage/internal/signup"
)

// RegistryAdapter は signup.Registry を FormProvider に適合させるアダプタ。
type RegistryAdapter struct {
	registry *signup.Registry
}

// NewRegistryAdapter はRegistryAdapterを生成する。
func NewRegistryAdapter(registry *signup.Registry) *RegistryAdapter {
	return &RegistryAdapter{registry: registry}
}

// Form は訪問者のフォームControllerを返す。
func (a *RegistryAdapter) Form(visitorID string) SignupForm {
	return a.registry.Get(visitorID)
}
