// Package store 提供 core.Store / core.KeyValueStore 及 Feed 读取接口的基础设施实现。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
//	fast := NewMemoryStore(10000)                         // 快层，进程内，可缺失
//	durable := NewBreakerStore(redisStore, cfg, logger)   // 持久层，熔断保护
//	interactions := NewStoreInteractionAdapter(kv, "")    // 交互日志
package store
