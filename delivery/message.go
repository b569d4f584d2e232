package delivery

import (
	"fmt"

	"github.com/coreybb/xianyu-autodeliver/models"
)

const messageTemplate = `感谢购买，您的激活码已生成：

兑换地址: %s

激活码: %s

套餐: %s

使用方法:
1. 打开上方链接，登录账号
2. 输入激活码进行兑换
3. 如有问题请联系客服

祝您使用愉快！`

// ComposeMessage builds the delivery note a buyer receives for code.
func ComposeMessage(code *models.ActivationCode, plan models.PlanDuration) string {
	packageName := code.PackageName
	if packageName == "" {
		packageName = plan.Label()
	}
	return fmt.Sprintf(messageTemplate, code.RedemptionURL, code.Code, packageName)
}
