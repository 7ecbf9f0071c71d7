// Package dialog runs named linear guided flows as one shared table-driven
// state machine: every step is prompt-and-capture, every flow ends in a
// finish function.
package dialog

import (
	"context"
	"fmt"
	"strings"

	"advisor/internal/logger"
	"advisor/internal/session"
)

// Validator 校验并规整一步输入；返回要落到字段里的值。
type Validator func(input string) (string, error)

// FinishFunc 数据采集型流程的终点：拿全部字段算结果并生成回复文本。
type FinishFunc func(ctx context.Context, userID int64, fields map[string]string) (string, error)

// PhotoFinishFunc 发布型流程的终点：最后一步收图而不是文本。
type PhotoFinishFunc func(ctx context.Context, userID int64, photoFileID string, fields map[string]string) (string, error)

// Step 流程中的一个状态。非终态收文本；WantPhoto 标记收图的终态。
type Step struct {
	Field       string
	Prompt      string
	ErrorPrompt string
	Options     []string // 非空时作为回复键盘渲染
	WantPhoto   bool
	Validate    Validator
}

// Flow 一条线性流程。Finish 与 FinishPhoto 二选一。
type Flow struct {
	Name        string
	Steps       []Step
	Finish      FinishFunc
	FinishPhoto PhotoFinishFunc
}

// OutcomeKind 一次输入推进后的结果类别。
type OutcomeKind int

const (
	// OutcomeNone 没有活跃流程，输入不归引擎管。
	OutcomeNone OutcomeKind = iota
	// OutcomePrompt 进入下一步，要向用户展示新提示。
	OutcomePrompt
	// OutcomeReprompt 校验失败，停在原状态重新提示。
	OutcomeReprompt
	// OutcomeNeedPhoto 当前步骤等待的是图片。
	OutcomeNeedPhoto
	// OutcomeDone 流程走完，Reply 为最终输出。
	OutcomeDone
	// OutcomeAborted 命中退出口令或被强制中止。
	OutcomeAborted
	// OutcomeStale 慢回调返回时会话已经换代，结果被丢弃。
	OutcomeStale
)

// Outcome 引擎推进一步的产物。文案全部来自流程定义，引擎不掺和。
type Outcome struct {
	Kind    OutcomeKind
	Prompt  string
	Options []string
	Reply   string
	// Err 终点函数的失败原因；前端据此渲染道歉文案，流程本身已正常关闭。
	Err error
}

// Engine 所有流程共用的状态机执行器。
type Engine struct {
	flows     map[string]*Flow
	sessions  *session.Store
	exitWords map[string]struct{}
}

// NewEngine exitWords 是全局退出口令（任意非终态可用）。
func NewEngine(store *session.Store, exitWords []string) *Engine {
	words := make(map[string]struct{}, len(exitWords))
	for _, w := range exitWords {
		words[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Engine{
		flows:     make(map[string]*Flow),
		sessions:  store,
		exitWords: words,
	}
}

// Register 注册一条流程；重名视为装配错误。
func (e *Engine) Register(f *Flow) error {
	if f == nil || f.Name == "" || len(f.Steps) == 0 {
		return fmt.Errorf("dialog: flow must have a name and at least one step")
	}
	if _, dup := e.flows[f.Name]; dup {
		return fmt.Errorf("dialog: duplicate flow %q", f.Name)
	}
	if f.Finish == nil && f.FinishPhoto == nil {
		return fmt.Errorf("dialog: flow %q has no finish function", f.Name)
	}
	e.flows[f.Name] = f
	return nil
}

// Start 启动流程。已有活跃流程时其字段被丢弃（白名单键除外）。
func (e *Engine) Start(userID int64, flowName string) (Outcome, error) {
	flow, ok := e.flows[flowName]
	if !ok {
		return Outcome{}, fmt.Errorf("dialog: unknown flow %q", flowName)
	}
	var out Outcome
	e.sessions.Mutate(userID, func(s *session.Session) {
		e.sessions.ResetFields(s)
		s.ActiveFlow = flow.Name
		s.StepIndex = 0
		s.Generation++
		first := flow.Steps[0]
		out = Outcome{Kind: OutcomePrompt, Prompt: first.Prompt, Options: first.Options}
	})
	return out, nil
}

// Active 返回用户当前的活跃流程名。
func (e *Engine) Active(userID int64) (string, bool) {
	var name string
	e.sessions.View(userID, func(s *session.Session) {
		name = s.ActiveFlow
	})
	return name, name != ""
}

// Abort 无条件中止（/start、/menu 等全局命令从任意状态可达）。
func (e *Engine) Abort(userID int64) {
	e.sessions.Mutate(userID, func(s *session.Session) {
		s.ActiveFlow = ""
		s.StepIndex = 0
		s.Generation++
		e.sessions.ResetFields(s)
	})
}

// HandleText 用一条文本输入推进状态机。
func (e *Engine) HandleText(ctx context.Context, userID int64, input string) Outcome {
	var (
		out     Outcome
		flow    *Flow
		gen     uint64
		fields  map[string]string
		decided bool
	)
	e.sessions.Mutate(userID, func(s *session.Session) {
		if s.ActiveFlow == "" {
			out = Outcome{Kind: OutcomeNone}
			decided = true
			return
		}
		f, ok := e.flows[s.ActiveFlow]
		if !ok {
			// 配置变化导致的孤儿会话，按中止处理。
			logger.Warnf("dialog: session of user %d references unknown flow %q", userID, s.ActiveFlow)
			e.abortLocked(s)
			out = Outcome{Kind: OutcomeAborted}
			decided = true
			return
		}
		if e.isExitWord(input) {
			e.abortLocked(s)
			out = Outcome{Kind: OutcomeAborted}
			decided = true
			return
		}
		step := f.Steps[s.StepIndex]
		if step.WantPhoto {
			out = Outcome{Kind: OutcomeNeedPhoto, Prompt: step.Prompt, Options: step.Options}
			decided = true
			return
		}
		value, err := step.Validate(input)
		if err != nil {
			prompt := step.ErrorPrompt
			if prompt == "" {
				prompt = err.Error()
			}
			out = Outcome{Kind: OutcomeReprompt, Prompt: prompt, Options: step.Options}
			decided = true
			return
		}
		s.Fields[step.Field] = value
		if s.StepIndex < len(f.Steps)-1 {
			s.StepIndex++
			next := f.Steps[s.StepIndex]
			out = Outcome{Kind: OutcomePrompt, Prompt: next.Prompt, Options: next.Options}
			decided = true
			return
		}
		// 终态：锁外跑 finish，回来要核对代数。
		flow = f
		gen = s.Generation
		fields = copyFields(s.Fields)
	})
	if decided {
		return out
	}
	return e.finishText(ctx, userID, flow, gen, fields)
}

// HandlePhoto 把一张图片交给状态机；仅 WantPhoto 终态接收。
func (e *Engine) HandlePhoto(ctx context.Context, userID int64, photoFileID string) Outcome {
	var (
		out     Outcome
		flow    *Flow
		gen     uint64
		fields  map[string]string
		decided bool
	)
	e.sessions.Mutate(userID, func(s *session.Session) {
		if s.ActiveFlow == "" {
			out = Outcome{Kind: OutcomeNone}
			decided = true
			return
		}
		f, ok := e.flows[s.ActiveFlow]
		if !ok || !f.Steps[s.StepIndex].WantPhoto {
			step := Step{}
			if ok {
				step = f.Steps[s.StepIndex]
			}
			out = Outcome{Kind: OutcomeReprompt, Prompt: step.Prompt, Options: step.Options}
			decided = true
			return
		}
		flow = f
		gen = s.Generation
		fields = copyFields(s.Fields)
	})
	if decided {
		return out
	}

	reply, err := flow.FinishPhoto(ctx, userID, photoFileID, fields)
	return e.settle(userID, flow.Name, gen, reply, err)
}

func (e *Engine) finishText(ctx context.Context, userID int64, flow *Flow, gen uint64, fields map[string]string) Outcome {
	if flow.Finish == nil {
		// 文本输入到达了收图终态之外的无 Finish 流程，视为装配错误。
		logger.Errorf("dialog: flow %q reached text finish without handler", flow.Name)
		e.Abort(userID)
		return Outcome{Kind: OutcomeAborted}
	}
	reply, err := flow.Finish(ctx, userID, fields)
	return e.settle(userID, flow.Name, gen, reply, err)
}

// settle 在慢回调结束后收尾：会话换代则丢弃结果，否则关闭流程。
func (e *Engine) settle(userID int64, flowName string, gen uint64, reply string, err error) Outcome {
	var stale bool
	e.sessions.Mutate(userID, func(s *session.Session) {
		if s.Generation != gen || s.ActiveFlow != flowName {
			stale = true
			return
		}
		s.ActiveFlow = ""
		s.StepIndex = 0
		s.Generation++
		e.sessions.ResetFields(s)
	})
	if stale {
		logger.Debugf("dialog: discarding stale result of flow %q for user %d", flowName, userID)
		return Outcome{Kind: OutcomeStale}
	}
	return Outcome{Kind: OutcomeDone, Reply: reply, Err: err}
}

func (e *Engine) abortLocked(s *session.Session) {
	s.ActiveFlow = ""
	s.StepIndex = 0
	s.Generation++
	e.sessions.ResetFields(s)
}

func (e *Engine) isExitWord(input string) bool {
	_, ok := e.exitWords[strings.ToLower(strings.TrimSpace(input))]
	return ok
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
