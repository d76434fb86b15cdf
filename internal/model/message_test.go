package model_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/synapse/internal/model"
)

var _ = Describe("Thread", func() {
	root := model.Message{TS: "1700000000.000100", Author: "Ana"}
	reply := model.Message{TS: "1700000001.000200", Author: "Ben", IsReply: true}

	It("is identified by its root timestamp", func() {
		Expect(model.Thread{Root: root}.ID()).To(Equal("1700000000.000100"))
	})

	It("accepts a root with replies", func() {
		Expect(model.Thread{Root: root, Replies: []model.Message{reply}}.Validate()).To(Succeed())
	})

	It("rejects a root flagged as a reply", func() {
		bad := root
		bad.IsReply = true
		Expect(model.Thread{Root: bad}.Validate()).To(MatchError(model.ErrInvalidThread))
	})

	It("rejects replies not flagged as replies", func() {
		bad := reply
		bad.IsReply = false
		err := model.Thread{Root: root, Replies: []model.Message{bad}}.Validate()
		Expect(err).To(MatchError(model.ErrInvalidThread))
	})
})

var _ = Describe("FormatTS", func() {
	DescribeTable("renders Slack timestamps as UTC",
		func(ts, expected string) {
			Expect(model.FormatTS(ts)).To(Equal(expected))
		},
		Entry("with microseconds", "1700000000.000100", "2023-11-14T22:13:20.000100"),
		Entry("whole seconds", "1700000000.000000", "2023-11-14T22:13:20"),
		Entry("no fraction", "1700000000", "2023-11-14T22:13:20"),
		Entry("garbage is passed through", "not-a-ts", "not-a-ts"),
	)
})
