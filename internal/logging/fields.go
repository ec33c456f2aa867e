package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供策略/规则/命中状态字段，供代理请求日志复用。
func RequestFields(strategy, rule, host string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"strategy":  strategy,
		"rule":      rule,
		"host":      host,
		"cache_hit": cacheHit,
	}
}

// LifecycleFields 描述 worker 生命周期事件所在的缓存代际与状态。
func LifecycleFields(version, state string) logrus.Fields {
	return logrus.Fields{
		"action":     "lifecycle",
		"generation": version,
		"state":      state,
	}
}
