package c37118

// TraceFunc 字段级解码回调：字段路径、相对帧首偏移、解码值
type TraceFunc func(field string, offset int, value any)

// ParseOptions 解析选项，零值即协议原样解码
type ParseOptions struct {
	// VerifyCRC 校验帧尾 CHK
	VerifyCRC bool
	// ApplyScaling 对 INTEGER 字段应用配置帧中的换算系数
	ApplyScaling bool
	// Trace 非空时每解出一个子字段回调一次
	Trace TraceFunc
}

func (o ParseOptions) trace(field string, offset int, value any) {
	if o.Trace != nil {
		o.Trace(field, offset, value)
	}
}
