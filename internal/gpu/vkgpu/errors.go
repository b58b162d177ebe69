package vkgpu

import (
	"github.com/vkngwrapper/core/v3/common"

	"github.com/vkngwrapper/bloom/internal/gpu"
)

// failure turns a failed driver call into the renderer's fatal error kind.
func failure(op string, res common.VkResult, err error) error {
	return &gpu.Error{Op: op, Status: res.String(), Err: err}
}

// missing reports a handle that was never issued or is already destroyed.
func missing(op string, obj gpu.Object) error {
	return &gpu.Error{Op: op, Status: "unknown " + obj.Kind().String()}
}
