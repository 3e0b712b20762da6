package exchange

import (
	"sync"

	"go.uber.org/zap"
)

// Provider 按凭据缓存交易所客户端。
// 每个 Settings 行引用一个凭据，私有端点必须用对应凭据签名，
// 公开行情则共用一个无凭据客户端。
type Provider struct {
	logger   *zap.Logger
	proxyURL string
	testnet  bool

	mu      sync.RWMutex
	clients map[string]Client
	public  Client
}

// NewProvider 创建客户端缓存
func NewProvider(proxyURL string, testnet bool, logger *zap.Logger) *Provider {
	return &Provider{
		logger:   logger,
		proxyURL: proxyURL,
		testnet:  testnet,
		clients:  make(map[string]Client),
	}
}

// Public 公开行情客户端（无凭据）
func (p *Provider) Public() Client {
	p.mu.RLock()
	if p.public != nil {
		defer p.mu.RUnlock()
		return p.public
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.public == nil {
		p.public = NewBinanceClient("", "", p.proxyURL, p.testnet)
	}
	return p.public
}

// ClientFor 返回绑定指定凭据的客户端，同一凭据复用同一实例
func (p *Provider) ClientFor(credentialID, apiKey, secret string) Client {
	p.mu.RLock()
	if c, ok := p.clients[credentialID]; ok {
		p.mu.RUnlock()
		return c
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[credentialID]; ok {
		return c
	}
	c := NewBinanceClient(apiKey, secret, p.proxyURL, p.testnet)
	p.logger.Info("exchange client created", zap.String("credential_id", credentialID))
	p.clients[credentialID] = c
	return c
}

// Replace 覆盖指定凭据的客户端（纸面模式和测试时注入模拟交易所）
func (p *Provider) Replace(credentialID string, c Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[credentialID] = c
	if p.public == nil {
		p.public = c
	}
}
